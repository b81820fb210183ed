package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	coremqtt "github.com/kilianp07/robofleet/core/mqtt"
)

// CommandSender publishes commands to a running fleet service. It does not
// announce presence and receives nothing.
type CommandSender struct {
	cli     pahoClient
	cfg     Config
	timeout time.Duration
}

// NewCommandSender connects to the broker described by cfg.
func NewCommandSender(cfg Config) (*CommandSender, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts.WillEnabled = false
	opts.AutoReconnect = false
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &CommandSender{cli: c, cfg: cfg, timeout: 5 * time.Second}, nil
}

// Send publishes cmd and returns its id. A missing id is generated.
func (s *CommandSender) Send(cmd coremqtt.Command) (string, error) {
	if err := cmd.Validate(); err != nil {
		return "", err
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return "", err
	}
	token := s.cli.Publish(s.cfg.commandTopic(), s.cfg.QoS["command"], false, payload)
	if !token.WaitTimeout(s.timeout) {
		return "", fmt.Errorf("publish %s: timeout", s.cfg.commandTopic())
	}
	if err := token.Error(); err != nil {
		return "", fmt.Errorf("publish %s: %w", s.cfg.commandTopic(), err)
	}
	return cmd.ID, nil
}

// Close disconnects from the broker.
func (s *CommandSender) Close() {
	s.cli.Disconnect(250)
}
