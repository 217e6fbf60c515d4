package notification

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/drguilhermecapel/medai/internal/conf"
	"github.com/drguilhermecapel/medai/internal/errors"
	"github.com/drguilhermecapel/medai/internal/logging"
)

// Publisher delivers notifications to an MQTT broker. Topic layout is
// <prefix>/<entity_kind>/<to_state>, so subscribers can filter on
// transitions they care about.
type Publisher struct {
	settings conf.MQTTSettings
	client   mqtt.Client
	logger   *slog.Logger
}

// NewPublisher creates a disconnected publisher from settings.
func NewPublisher(settings conf.MQTTSettings) *Publisher {
	if settings.Timeout <= 0 {
		settings.Timeout = 5 * time.Second
	}
	return &Publisher{
		settings: settings,
		logger:   logging.ForService("mqtt"),
	}
}

// Connect establishes the broker connection.
func (p *Publisher) Connect() error {
	opts := mqtt.NewClientOptions().
		AddBroker(p.settings.Broker).
		SetClientID(p.settings.ClientID).
		SetConnectTimeout(p.settings.Timeout).
		SetAutoReconnect(true).
		SetConnectRetry(false)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.logger.Warn("mqtt connection lost", slog.Any("error", err))
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(p.settings.Timeout) {
		return errors.Newf("mqtt connect to %s timed out", p.settings.Broker).
			Component("notification").
			Category(errors.CategoryMQTTPublish).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryMQTTPublish).
			Context("broker", p.settings.Broker).
			Build()
	}
	p.client = client
	p.logger.Info("mqtt connected", slog.String("broker", p.settings.Broker))
	return nil
}

// Publish sends one notification as JSON. Returns an error if the
// broker does not acknowledge within the configured timeout.
func (p *Publisher) Publish(n *Notification) error {
	if p.client == nil || !p.client.IsConnected() {
		return errors.Newf("mqtt client is not connected").
			Component("notification").
			Category(errors.CategoryMQTTPublish).
			Build()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryMQTTPublish).
			Build()
	}
	topic := fmt.Sprintf("%s/%s/%s", p.settings.Topic, n.EntityKind, n.To)
	token := p.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(p.settings.Timeout) {
		return errors.Newf("mqtt publish to %s timed out", topic).
			Component("notification").
			Category(errors.CategoryMQTTPublish).
			Build()
	}
	return token.Error()
}

// Disconnect closes the broker connection gracefully.
func (p *Publisher) Disconnect() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(uint(p.settings.Timeout.Milliseconds()))
	}
}
