package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/prite36/cropsense/internal/telemetry"
)

const publishTimeout = 5 * time.Second

// Client publishes poll snapshots and alerts. A nil *Client is a disabled publisher.
type Client struct {
	client mqtt.Client
	prefix string
	logger *zap.Logger
}

// NewClient connects to the broker, or returns nil when no broker is configured.
func NewClient(broker, clientID, username, password, prefix string, logger *zap.Logger) (*Client, error) {
	if broker == "" {
		logger.Info("mqtt broker is not configured, snapshot publishing is disabled")
		return nil, nil
	}

	c := &Client{prefix: prefix, logger: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	if username != "" {
		opts.SetUsername(username)
	}
	if password != "" {
		opts.SetPassword(password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.OnConnect = c.connectHandler
	opts.OnConnectionLost = c.connectionLostHandler

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		logger.Warn("mqtt broker not reachable yet, retrying in the background", zap.String("broker", broker))
	} else if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	c.client = client
	return c, nil
}

func (c *Client) connectHandler(client mqtt.Client) {
	c.logger.Info("connected to mqtt broker")
}

func (c *Client) connectionLostHandler(client mqtt.Client, err error) {
	c.logger.Warn("connection to mqtt broker lost", zap.Error(err))
}

// SnapshotTopic is <prefix>/<site>/telemetry.
func SnapshotTopic(prefix, siteID string) string {
	return fmt.Sprintf("%s/%s/telemetry", prefix, siteID)
}

// AlertTopic is <prefix>/<site>/alerts.
func AlertTopic(prefix, siteID string) string {
	return fmt.Sprintf("%s/%s/alerts", prefix, siteID)
}

// SnapshotPayload is the retained telemetry document published after every poll.
type SnapshotPayload struct {
	SiteID          string             `json:"siteId"`
	Online          bool               `json:"online"`
	PolledAt        time.Time          `json:"polledAt"`
	Values          map[string]float64 `json:"values"`
	AverageMoisture int                `json:"avgMoisture"`
}

func NewSnapshotPayload(s *telemetry.Snapshot) SnapshotPayload {
	return SnapshotPayload{
		SiteID:          s.SiteID,
		Online:          s.Online,
		PolledAt:        s.PolledAt,
		Values:          s.Values(),
		AverageMoisture: telemetry.AverageMoisture(s),
	}
}

type AlertPayload struct {
	SiteID string    `json:"siteId"`
	At     time.Time `json:"at"`
	Alerts []string  `json:"alerts"`
}

func (c *Client) PublishSnapshot(s *telemetry.Snapshot) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.publish(SnapshotTopic(c.prefix, s.SiteID), true, NewSnapshotPayload(s))
}

func (c *Client) PublishAlerts(siteID string, at time.Time, alerts []string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.publish(AlertTopic(c.prefix, siteID), false, AlertPayload{SiteID: siteID, At: at, Alerts: alerts})
}

func (c *Client) publish(topic string, retained bool, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", topic, err)
	}

	token := c.client.Publish(topic, 1, retained, body)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timeout publishing to topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("error publishing to topic %s: %w", topic, token.Error())
	}

	c.logger.Debug("published mqtt message", zap.String("topic", topic))
	return nil
}

// Close disconnects the MQTT client.
func (c *Client) Close() {
	if c != nil && c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}
