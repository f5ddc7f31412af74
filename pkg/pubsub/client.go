package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"google.golang.org/api/option"

	"github.com/tmorales/waresync-backend/pkg/config"
	"github.com/tmorales/waresync-backend/pkg/logger"
)

const publishTimeout = 15 * time.Second

var errProjectIDRequired = errors.New("gcp project id is required")

// AlertPublisher pushes operator alerts (dead-lettered events, failed cycles)
// to a Pub/Sub topic. A nil publisher is a no-op, so alerting stays optional.
type AlertPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topic     string
	logg      *logger.Logger
}

// Alert is the message body published for operator triage.
type Alert struct {
	Kind       string         `json:"kind"`
	Source     string         `json:"source"`
	OccurredAt time.Time      `json:"occurred_at"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// NewAlertPublisher creates the publisher when an alert topic is configured;
// it returns (nil, nil) when alerting is disabled.
func NewAlertPublisher(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*AlertPublisher, error) {
	if !cfg.AlertsEnabled() {
		return nil, nil
	}
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	opts := []option.ClientOption{}
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	}

	psClient, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	topic := strings.TrimSpace(cfg.AlertTopic)
	p := &AlertPublisher{
		client:    psClient,
		publisher: psClient.Publisher(topic),
		topic:     topic,
		logg:      logg,
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", topic), "alert publisher initialized")
	}
	return p, nil
}

// Publish sends the alert. Failures are logged, never propagated, so alerting
// cannot break the sweep or the cycle.
func (p *AlertPublisher) Publish(ctx context.Context, alert Alert) {
	if p == nil || p.publisher == nil {
		return
	}
	if alert.OccurredAt.IsZero() {
		alert.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		p.warn(ctx, "marshal alert", err)
		return
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := p.publisher.Publish(publishCtx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"kind":   alert.Kind,
			"source": alert.Source,
		},
	})
	if _, err := result.Get(publishCtx); err != nil {
		p.warn(ctx, "publish alert", err)
	}
}

// Close releases the underlying client.
func (p *AlertPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

func (p *AlertPublisher) warn(ctx context.Context, op string, err error) {
	if p.logg == nil {
		return
	}
	logCtx := p.logg.WithFields(ctx, map[string]any{
		"topic": p.topic,
		"op":    op,
		"error": err.Error(),
	})
	p.logg.Warn(logCtx, "alert publish failed")
}
