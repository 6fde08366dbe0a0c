/*
 * Copyright 2025 SoundOps.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package events publishes device-change CloudEvents to NATS JetStream
// for the broadcast collaborator to consume.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/soundops/micwatch/pkg/logger"
	"github.com/soundops/micwatch/pkg/models"
)

const (
	// StreamName is the JetStream stream carrying registry events.
	StreamName = "MICWATCH_EVENTS"

	subjectDeviceChange    = "micwatch.events.device.change"
	subjectReviewRequested = "micwatch.events.conflict.review"

	eventSource = "micwatch/sync"

	publishInitialBackoff = 50 * time.Millisecond
	publishMaxElapsed     = 5 * time.Second
)

// Publisher emits CloudEvents onto a JetStream stream.
type Publisher struct {
	js     jetstream.JetStream
	stream string
	log    logger.Logger
}

// Connect dials NATS, ensures the event stream exists, and returns a
// Publisher plus the connection for the caller to close on shutdown.
func Connect(ctx context.Context, natsURL string, log logger.Logger) (*Publisher, *nats.Conn, error) {
	nc, err := nats.Connect(natsURL,
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.Stream(ctx, StreamName); err != nil {
		streamConfig := jetstream.StreamConfig{
			Name:     StreamName,
			Subjects: []string{"micwatch.events.>"},
		}

		if _, err := js.CreateOrUpdateStream(ctx, streamConfig); err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("failed to create or get stream %s: %w", StreamName, err)
		}
	}

	return &Publisher{js: js, stream: StreamName, log: log}, nc, nil
}

// PublishDeviceChange emits one event for a device whose status or
// identity changed.
func (p *Publisher) PublishDeviceChange(ctx context.Context, event *models.DeviceChangeEvent) error {
	return p.publish(ctx, subjectDeviceChange, "com.soundops.micwatch.device.change", event.Timestamp, event)
}

// PublishReviewRequested notifies the approval workflow of a freshly
// queued conflict.
func (p *Publisher) PublishReviewRequested(ctx context.Context, entry *models.ConflictEntry) error {
	data := models.ReviewRequestedEvent{
		ConflictID:   entry.ID,
		SourceID:     entry.Observation.SourceID,
		Kind:         entry.Kind,
		DiscoveredAt: entry.DiscoveredAt,
	}

	return p.publish(ctx, subjectReviewRequested, "com.soundops.micwatch.conflict.review", entry.DiscoveredAt, data)
}

func (p *Publisher) publish(ctx context.Context, subject, eventType string, ts time.Time, data interface{}) error {
	eventTime := ts
	if eventTime.IsZero() {
		eventTime = time.Now()
	}

	event := models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          eventSource,
		Type:            eventType,
		DataContentType: "application/json",
		Subject:         subject,
		Time:            &eventTime,
		Data:            data,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = publishInitialBackoff

	operation := func() (struct{}, error) {
		if _, err := p.js.Publish(ctx, subject, payload); err != nil {
			return struct{}{}, err
		}

		return struct{}{}, nil
	}

	if _, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(publishMaxElapsed)); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}

	p.log.Debug().
		Str("subject", subject).
		Str("event_id", event.ID).
		Msg("Published event")

	return nil
}

// NopSink drops all events. Used when no broadcast transport is
// configured.
type NopSink struct{}

func (NopSink) PublishDeviceChange(_ context.Context, _ *models.DeviceChangeEvent) error {
	return nil
}

func (NopSink) PublishReviewRequested(_ context.Context, _ *models.ConflictEntry) error {
	return nil
}
