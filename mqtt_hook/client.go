package mqtthook

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher publishes one MQTT message.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// ClientConfig configures the paho client.
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Client is a connected paho MQTT client.
type Client struct {
	client  mqtt.Client
	timeout time.Duration
}

// Dial connects to the broker with auto-reconnect enabled.
func Dial(cfg ClientConfig) (*Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if tok := client.Connect(); tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("mqtthook: connect %s: %w", cfg.Broker, tok.Error())
	}
	return &Client{client: client, timeout: 5 * time.Second}, nil
}

// Publish implements Publisher.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	tok := c.client.Publish(topic, qos, retained, payload)
	if !tok.WaitTimeout(c.timeout) {
		return fmt.Errorf("mqtthook: publish %s: timed out", topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtthook: publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects, waiting up to 250ms for in-flight work.
func (c *Client) Close() { c.client.Disconnect(250) }
