package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/robofleet/core/events"
	coremon "github.com/kilianp07/robofleet/core/monitoring"
	coremqtt "github.com/kilianp07/robofleet/core/mqtt"
	"github.com/kilianp07/robofleet/infra/logger"
)

// ErrCommandDropped is acknowledged for commands that arrive while the
// command buffer is full or the client is shutting down.
var ErrCommandDropped = errors.New("command dropped")

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker     string          `json:"broker"`
	ClientID   string          `json:"client_id"`
	Username   string          `json:"username"`
	Password   string          `json:"password"`
	UseTLS     bool            `json:"use_tls"`
	ClientCert string          `json:"client_cert"`
	ClientKey  string          `json:"client_key"`
	CABundle   string          `json:"ca_bundle"`
	AuthMethod string          `json:"auth_method"`
	QoS        map[string]byte `json:"qos"`
	// TopicPrefix roots every topic, e.g. "robofleet/robots/3/status".
	TopicPrefix string `json:"topic_prefix"`
	// Buffer is the capacity of the command channel.
	Buffer     int         `json:"buffer"`
	LWTPayload string      `json:"lwt_payload"`
	LWTQoS     byte        `json:"lwt_qos"`
	LWTRetain  bool        `json:"lwt_retain"`
	MaxRetries int         `json:"max_retries"`
	BackoffMS  int         `json:"backoff_ms"`
	TLSConfig  *tls.Config `json:"-"`
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool { return c.Broker != "" }

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "robofleet-" + uuid.NewString()[:8]
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "robofleet"
	}
	if c.Buffer <= 0 {
		c.Buffer = 32
	}
	if c.LWTPayload == "" {
		c.LWTPayload = "offline"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt: broker is required")
	}
	switch c.AuthMethod {
	case "", "username_password", "certificate", "both":
	default:
		return fmt.Errorf("mqtt: unknown auth_method %q", c.AuthMethod)
	}
	return nil
}

// Topics used by the client.
func (c Config) statusTopic(robot string) string { return c.TopicPrefix + "/robots/" + robot + "/status" }
func (c Config) taskTopic() string               { return c.TopicPrefix + "/events/task" }
func (c Config) deadlockTopic() string           { return c.TopicPrefix + "/events/deadlock" }
func (c Config) commandTopic() string            { return c.TopicPrefix + "/commands" }
func (c Config) ackTopic() string                { return c.TopicPrefix + "/commands/ack" }
func (c Config) presenceTopic() string           { return c.TopicPrefix + "/presence" }

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoClient publishes fleet telemetry and receives remote commands through
// an MQTT broker.
type PahoClient struct {
	cli    pahoClient
	cfg    Config
	logger logger.Logger

	mu       sync.Mutex
	closed   bool
	commands chan coremqtt.Command
	backoff  time.Duration
}

var (
	_ coremqtt.Telemetry     = (*PahoClient)(nil)
	_ coremqtt.CommandSource = (*PahoClient)(nil)
)

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker and subscribes to the command topic.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_client")
	pc := &PahoClient{
		cfg:      cfg,
		logger:   log,
		commands: make(chan coremqtt.Command, cfg.Buffer),
		backoff:  time.Duration(cfg.BackoffMS) * time.Millisecond,
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if token := c.Subscribe(cfg.commandTopic(), pc.qos("command"), pc.onCommand); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
		c.Publish(cfg.presenceTopic(), cfg.LWTQoS, true, "online")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS || cfg.AuthMethod == "certificate" || cfg.AuthMethod == "both" {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.TopicPrefix != "" {
		opts.SetWill(cfg.presenceTopic(), cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (p *PahoClient) qos(kind string) byte {
	return p.cfg.QoS[kind]
}

// onCommand decodes a command and hands it to the run loop. Commands are
// dropped when the loop lags behind.
func (p *PahoClient) onCommand(_ paho.Client, msg paho.Message) {
	var cmd coremqtt.Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		p.logger.Errorf("failed to decode command: %v", err)
		return
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if err := cmd.Validate(); err != nil {
		p.logger.Warnf("rejected command %s: %v", cmd.ID, err)
		_ = p.PublishAck(cmd.ID, err)
		return
	}
	if !p.deliver(cmd) {
		p.logger.Warnf("command buffer full, dropping %s", cmd.ID)
		_ = p.PublishAck(cmd.ID, ErrCommandDropped)
		return
	}
	p.logger.Debugf("received command %s (%s)", cmd.ID, cmd.Action)
}

func (p *PahoClient) deliver(cmd coremqtt.Command) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.commands <- cmd:
		return true
	default:
		return false
	}
}

// Commands returns the channel of validated remote commands.
func (p *PahoClient) Commands() <-chan coremqtt.Command { return p.commands }

// publish sends v as JSON, retrying with exponential backoff.
func (p *PahoClient) publish(kind, topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	qos := p.qos(kind)
	var publishErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, retained, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		p.logger.Errorf("publish attempt %d on %s failed: %v", attempt+1, topic, publishErr)
		if attempt < p.cfg.MaxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	coremon.CaptureException(publishErr, map[string]string{"module": "mqtt", "topic": topic})
	return fmt.Errorf("publish %s: %w", topic, publishErr)
}

// PublishStatus publishes the latest status of a robot as a retained message.
func (p *PahoClient) PublishStatus(ev events.StatusChange) error {
	return p.publish("status", p.cfg.statusTopic(ev.Robot.String()), true, ev)
}

// PublishTaskOutcome publishes a task outcome.
func (p *PahoClient) PublishTaskOutcome(ev events.TaskOutcome) error {
	return p.publish("event", p.cfg.taskTopic(), false, ev)
}

// PublishDeadlock publishes a detected wait-for cycle.
func (p *PahoClient) PublishDeadlock(ev events.DeadlockEvent) error {
	return p.publish("event", p.cfg.deadlockTopic(), false, ev)
}

// PublishAck reports the result of a command.
func (p *PahoClient) PublishAck(commandID string, err error) error {
	ack := struct {
		CommandID string `json:"command_id"`
		OK        bool   `json:"ok"`
		Error     string `json:"error,omitempty"`
		Timestamp int64  `json:"timestamp"`
	}{CommandID: commandID, OK: err == nil, Timestamp: time.Now().UnixMilli()}
	if err != nil {
		ack.Error = err.Error()
	}
	return p.publish("ack", p.cfg.ackTopic(), false, ack)
}

// Disconnect gracefully closes the MQTT connection and the command channel.
func (p *PahoClient) Disconnect() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.commands)
	}
	p.mu.Unlock()
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Publish(p.cfg.presenceTopic(), p.cfg.LWTQoS, true, p.cfg.LWTPayload).Wait()
		p.cli.Disconnect(250)
	}
}
