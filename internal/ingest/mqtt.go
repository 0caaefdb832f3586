// Package ingest applies location pushes arriving over MQTT.
//
// A push is attributed to the user named by the last segment of its topic.
// The payload carries no identity of its own, so the broker must enforce
// per-client topic ACLs: each client may publish only to the topic of the user
// it authenticated as, e.g. a Mosquitto "pattern write familyshare/location/%u"
// rule with anonymous access disabled. Deploying without such ACLs lets any
// client that can publish move any member's location.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/familyshare/familyshare/internal/metrics"
	"github.com/familyshare/familyshare/internal/model"
)

// HandleTimeout bounds the store write for one message.
const HandleTimeout = 5 * time.Second

var (
	// ErrBadTopic indicates the topic does not end in a user id.
	ErrBadTopic = errors.New("location topic has no user id")
	// ErrBadPayload indicates the message body is not a location push.
	ErrBadPayload = errors.New("malformed location payload")
	// ErrNotConnected is returned by Ping while the broker link is down.
	ErrNotConnected = errors.New("mqtt broker not connected")
)

// LocationUpdater records a user's location in every circle they belong to.
type LocationUpdater interface {
	UpdateLocation(ctx context.Context, userID string, loc model.LatLng, at time.Time) (int, error)
}

// Config holds broker settings.
type Config struct {
	BrokerURL string
	ClientID  string
	Topic     string // e.g. familyshare/location/+, last segment is the user id
	Username  string
	Password  string
}

// LocationPush is the MQTT message body.
type LocationPush struct {
	Lat float64   `json:"lat"`
	Lng float64   `json:"lng"`
	At  time.Time `json:"at"`
}

// Subscriber consumes location pushes from an MQTT broker.
type Subscriber struct {
	cfg     Config
	updater LocationUpdater
	metrics metrics.Recorder
	logger  *slog.Logger
	client  mqtt.Client
}

// NewSubscriber creates a subscriber. Call Start to connect.
func NewSubscriber(cfg Config, updater LocationUpdater, recorder metrics.Recorder, logger *slog.Logger) *Subscriber {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Subscriber{cfg: cfg, updater: updater, metrics: recorder, logger: logger}
}

// Start connects to the broker and subscribes. Reconnects resubscribe.
func (s *Subscriber) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.BrokerURL)
	opts.SetClientID(s.cfg.ClientID)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
	}
	if s.cfg.Password != "" {
		opts.SetPassword(s.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if token := c.Subscribe(s.cfg.Topic, 1, s.onMessage); token.Wait() && token.Error() != nil {
			s.logger.Error("mqtt_subscribe_failed", "topic", s.cfg.Topic, "error", token.Error())
			return
		}
		s.logger.Info("mqtt_subscribed", "topic", s.cfg.Topic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn("mqtt_connection_lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

// Stop unsubscribes and disconnects.
func (s *Subscriber) Stop() {
	if s.client == nil || !s.client.IsConnected() {
		return
	}
	s.client.Unsubscribe(s.cfg.Topic).WaitTimeout(time.Second)
	s.client.Disconnect(250)
}

// Ping reports whether the broker connection is currently open.
func (s *Subscriber) Ping(context.Context) error {
	if s.client == nil || !s.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	return nil
}

func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), HandleTimeout)
	defer cancel()

	if err := s.Handle(ctx, msg.Topic(), msg.Payload()); err != nil {
		s.logger.Warn("mqtt_location_rejected", "topic", msg.Topic(), "error", err)
	}
}

// Handle applies one location push. The user id is the last topic segment
// and is trusted as-is; see the package doc for the broker ACL requirement.
func (s *Subscriber) Handle(ctx context.Context, topic string, payload []byte) error {
	userID := topic[strings.LastIndex(topic, "/")+1:]
	if userID == "" || userID == "+" || userID == "#" {
		return ErrBadTopic
	}

	var push LocationPush
	if err := json.Unmarshal(payload, &push); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	n, err := s.updater.UpdateLocation(ctx, userID, model.LatLng{Lat: push.Lat, Lng: push.Lng}, push.At)
	if err != nil {
		return err
	}
	s.metrics.IncLocationPush("mqtt")
	s.logger.Debug("location_pushed", "user_id", userID, "circles", n, "source", "mqtt")
	return nil
}
