package mqtt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/robofleet/core/events"
	coremon "github.com/kilianp07/robofleet/core/monitoring"
	coremqtt "github.com/kilianp07/robofleet/core/mqtt"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	for path, data := range map[string][]byte{certFile: certPEM, keyFile: keyPEM, caFile: certPEM} {
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return
}

// withMock swaps the paho constructor for the duration of the test.
func withMock(t *testing.T, mc *mockClient) {
	t.Helper()
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() {
		newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) }
	})
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	if err != nil {
		t.Fatalf("load tls: %v", err)
	}
	if len(tlsCfg.Certificates) == 0 {
		t.Fatalf("no certs loaded")
	}
	if tlsCfg.RootCAs == nil {
		t.Fatalf("no root CAs")
	}

	if _, err := (Config{UseTLS: true}).LoadTLSConfig(); err == nil {
		t.Fatalf("expected error without certificate paths")
	}
}

func TestNewClientOptionsAuth(t *testing.T) {
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"}
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		t.Fatalf("opts: %v", err)
	}
	if opts.Username != "u" || opts.Password != "p" {
		t.Fatalf("auth not set")
	}
	if !opts.WillEnabled || opts.WillTopic != "robofleet/presence" || string(opts.WillPayload) != "offline" {
		t.Fatalf("will options incorrect: %s %s", opts.WillTopic, opts.WillPayload)
	}
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{Broker: "tcp://b:1883", AuthMethod: "kerberos"}.Validate())
	assert.NoError(t, Config{Broker: "tcp://b:1883", AuthMethod: "both"}.Validate())
}

func TestPublishTopicsAndQoS(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", TopicPrefix: "plant", QoS: map[string]byte{"status": 1, "command": 2}})
	require.NoError(t, err)

	require.Len(t, mc.subscribed, 1)
	assert.Equal(t, "plant/commands", mc.subscribed[0].topic)
	assert.Equal(t, byte(2), mc.subscribed[0].qos)

	require.NoError(t, cli.PublishStatus(events.StatusChange{Robot: 3, From: "idle", To: "moving"}))
	require.NoError(t, cli.PublishTaskOutcome(events.TaskOutcome{Outcome: events.TaskCompleted}))
	require.NoError(t, cli.PublishDeadlock(events.DeadlockEvent{}))

	topics := mc.topics()
	assert.Equal(t, []string{"plant/presence", "plant/robots/3/status", "plant/events/task", "plant/events/deadlock"}, topics)
	assert.Equal(t, byte(1), mc.published[1].qos)
	assert.True(t, mc.published[1].retained, "status is retained")

	var got events.StatusChange
	require.NoError(t, json.Unmarshal(mc.published[1].payload, &got))
	assert.Equal(t, "moving", got.To)
}

func TestCommandsAreDelivered(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", Buffer: 1})
	require.NoError(t, err)

	cli.onCommand(nil, mockMessage{[]byte(`{"command_id":"c1","action":"assign","robot":2,"target":5}`)})
	select {
	case cmd := <-cli.Commands():
		assert.Equal(t, "c1", cmd.ID)
		assert.Equal(t, coremqtt.ActionAssign, cmd.Action)
		require.NotNil(t, cmd.Robot)
		assert.EqualValues(t, 2, *cmd.Robot)
		assert.EqualValues(t, 5, cmd.Target)
	default:
		t.Fatal("command not delivered")
	}

	cli.onCommand(nil, mockMessage{[]byte(`{"command_id":"c2","action":"assign","target":5}`)})
	cli.onCommand(nil, mockMessage{[]byte(`not json`)})
	cli.onCommand(nil, mockMessage{[]byte(`{"command_id":"c3","action":"stop_all"}`)})
	cli.onCommand(nil, mockMessage{[]byte(`{"command_id":"c4","action":"resume_all"}`)})
	assert.Len(t, cli.Commands(), 1, "only the valid command fits the buffer")

	acks := mc.payloadsOn("robofleet/commands/ack")
	require.Len(t, acks, 2)
	assert.Contains(t, string(acks[0]), `"command_id":"c2","ok":false`)
	assert.Contains(t, string(acks[1]), `"command_id":"c4","ok":false`)

	cli.Disconnect()
	<-cli.Commands()
	if _, ok := <-cli.Commands(); ok {
		t.Fatal("commands channel should be closed after disconnect")
	}
	cli.onCommand(nil, mockMessage{[]byte(`{"command_id":"c5","action":"stop_all"}`)})
}

func TestRetryLogic(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), nil}}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
	require.NoError(t, err)
	mc.published = nil
	mc.publishErrs = []error{fmt.Errorf("net fail"), nil}

	require.NoError(t, cli.PublishTaskOutcome(events.TaskOutcome{}))
	assert.Len(t, mc.published, 2, "expected one retry")
}

type recordMonitor struct {
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.err = err
	r.tags = tags
}
func (r *recordMonitor) CapturePanic(any, map[string]string) {}
func (r *recordMonitor) Flush(time.Duration)                 {}

func TestPublishErrorCaptured(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	mon := &recordMonitor{}
	coremon.Init(mon)
	defer coremon.Init(coremon.NopMonitor{})

	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", MaxRetries: 2, BackoffMS: 1})
	require.NoError(t, err)
	fail := errors.New("net fail")
	mc.publishErrs = []error{fail, fail, fail}

	err = cli.PublishDeadlock(events.DeadlockEvent{})
	require.ErrorIs(t, err, fail)
	if mon.err == nil {
		t.Fatalf("error not captured")
	}
	if mon.tags["module"] != "mqtt" || mon.tags["topic"] != "robofleet/events/deadlock" {
		t.Fatalf("tags not set: %v", mon.tags)
	}
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// mockClient implements pahoClient for tests
type mockClient struct {
	opts       *paho.ClientOptions
	subscribed []struct {
		topic string
		qos   byte
	}
	published   []published
	publishErrs []error
}

func (m *mockClient) topics() []string {
	out := make([]string, len(m.published))
	for i, p := range m.published {
		out[i] = p.topic
	}
	return out
}

func (m *mockClient) payloadsOn(topic string) [][]byte {
	var out [][]byte
	for _, p := range m.published {
		if p.topic == topic {
			out = append(out, p.payload)
		}
	}
	return out
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	m.published = append(m.published, published{topic, qos, retained, b})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}
func (m *mockClient) Subscribe(topic string, qos byte, _ paho.MessageHandler) paho.Token {
	m.subscribed = append(m.subscribed, struct {
		topic string
		qos   byte
	}{topic, qos})
	return &dummyToken{}
}
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return true }

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type mockMessage struct{ p []byte }

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return "" }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}
