package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/libula/internal/config"
	"github.com/nugget/libula/internal/events"
)

// client is the part of the connection manager the publisher uses.
type client interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// Publisher forwards bus events to the broker.
type Publisher struct {
	cfg    config.MQTTConfig
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
	client client
}

// New creates a Publisher. Call [Publisher.Start] to connect.
func New(cfg config.MQTTConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{cfg: cfg, logger: logger}
}

// Start connects to the broker and waits up to 10 seconds for the
// first connection. A slow broker is logged, not fatal; autopaho keeps
// retrying in the background.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.cfg.ClientID,
		},
	}
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm
	p.client = cm

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}
	return nil
}

// Forward publishes events received on ch until ch is closed or ctx
// is done. Events still buffered when ch is closed are published
// before Forward returns.
func (p *Publisher) Forward(ctx context.Context, ch <-chan events.Event) error {
	if p.client == nil {
		return errors.New("mqtt publisher not started")
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			p.forward(ctx, e)
		}
	}
}

func (p *Publisher) forward(ctx context.Context, e events.Event) {
	msgs, err := p.messages(e)
	if err != nil {
		p.logger.Error("mqtt marshal event", "kind", e.Kind, "error", err)
		return
	}
	for _, m := range msgs {
		if _, err := p.client.Publish(ctx, m); err != nil {
			p.logger.Debug("mqtt event publish failed", "topic", m.Topic, "error", err)
		}
	}
}

// messages renders e as the publishes it produces.
func (p *Publisher) messages(e events.Event) ([]*paho.Publish, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	msgs := []*paho.Publish{{
		Topic:   p.eventTopic(e.Source, e.Kind),
		Payload: payload,
		QoS:     0,
	}}

	if e.Kind == events.KindWorkflowComplete {
		if user, _ := e.Data["user_id"].(string); user != "" {
			note, err := json.Marshal(map[string]any{
				"request_id": e.Data["request_id"],
				"workflow":   e.Data["workflow"],
				"story_id":   e.Data["story_id"],
				"ts":         e.Timestamp,
			})
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, &paho.Publish{
				Topic:   p.userTopic(user),
				Payload: note,
				QoS:     1,
			})
		}
	}
	return msgs, nil
}

// Stop publishes "offline" and disconnects.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.publishAvailability(ctx, p.cm, "offline")
	return p.cm.Disconnect(ctx)
}

func (p *Publisher) publishAvailability(ctx context.Context, c client, status string) {
	if _, err := c.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
		return
	}
	p.logger.Debug("mqtt availability published", "status", status)
}

// --- Topics ---

func (p *Publisher) availabilityTopic() string {
	return p.cfg.TopicPrefix + "/availability"
}

func (p *Publisher) eventTopic(source, kind string) string {
	return p.cfg.TopicPrefix + "/events/" + topicSegment(source) + "/" + topicSegment(kind)
}

func (p *Publisher) userTopic(userID string) string {
	return p.cfg.TopicPrefix + "/users/" + topicSegment(userID) + "/stories"
}

// topicSegment keeps a value from adding levels or wildcards to a
// topic.
func topicSegment(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}
