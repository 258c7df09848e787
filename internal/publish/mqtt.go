// Package publish mirrors the current fix onto an MQTT broker as a retained
// JSON message, so late subscribers immediately see the last known position.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"fieldcast/internal/gps"
)

type Config struct {
	// Broker is the MQTT URL, e.g. "tcp://localhost:1883". Empty disables
	// publishing entirely.
	Broker   string
	ClientID string
	Topic    string

	// Interval is the minimum spacing between published fixes.
	Interval time.Duration

	ConnectTimeout time.Duration
}

// Publisher pushes fix snapshots to the broker. A nil Publisher is a no-op,
// which keeps the daemon's wiring unconditional.
type Publisher struct {
	client mqtt.Client
	topic  string

	interval time.Duration
	lastSent time.Time
	lastFix  gps.Fix
}

// New connects to the broker. It returns (nil, nil) when no broker is
// configured.
func New(cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, nil
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "fieldcast-gps"
	}
	if cfg.Topic == "" {
		cfg.Topic = "fieldcast/gps/fix"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(cfg.ConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect to %s: timeout", cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}

	log.Printf("publish connected broker=%s topic=%s", cfg.Broker, cfg.Topic)
	return &Publisher{client: client, topic: cfg.Topic, interval: cfg.Interval}, nil
}

// Publish sends the fix if it differs from the last one sent and the minimum
// interval has elapsed. QoS 0, retained.
func (p *Publisher) Publish(f gps.Fix, nowUTC time.Time) error {
	if p == nil {
		return nil
	}
	if nowUTC.Sub(p.lastSent) < p.interval {
		return nil
	}
	if f.TimestampUTC == p.lastFix.TimestampUTC && f.Status == p.lastFix.Status {
		return nil
	}

	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal fix: %w", err)
	}
	tok := p.client.Publish(p.topic, 0, true, body)
	if !tok.WaitTimeout(p.interval) {
		return fmt.Errorf("publish %s: timeout", p.topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", p.topic, err)
	}
	p.lastSent = nowUTC
	p.lastFix = f
	return nil
}

// Run polls snapshots until the context ends. Publish failures are logged and
// retried on the next tick; the broker being down must not affect acquisition.
func (p *Publisher) Run(ctx context.Context, snapshot func() gps.Fix) {
	if p == nil {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := p.Publish(snapshot(), now.UTC()); err != nil {
				log.Printf("publish: %v", err)
			}
		}
	}
}

// Close flushes and disconnects. Safe on nil.
func (p *Publisher) Close() {
	if p == nil || p.client == nil {
		return
	}
	p.client.Disconnect(250)
}
