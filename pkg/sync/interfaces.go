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

package sync

import (
	"context"
	"time"

	"github.com/soundops/micwatch/pkg/logger"
	"github.com/soundops/micwatch/pkg/models"
)

// SourceAdapter fetches one batch of observations from a vendor API.
// Adapters own vendor-specific auth, pagination, and payload parsing.
type SourceAdapter interface {
	FetchBatch(ctx context.Context, sourceID string) ([]*models.Observation, error)
}

// AdapterFactory builds an adapter from a source config. Factories are
// selected through a static registration table, never reflection.
type AdapterFactory func(config *models.SourceConfig, log logger.Logger) SourceAdapter

// EventSink receives the explicit event stream the broadcast
// collaborator subscribes to.
type EventSink interface {
	PublishDeviceChange(ctx context.Context, event *models.DeviceChangeEvent) error
	PublishReviewRequested(ctx context.Context, entry *models.ConflictEntry) error
}

// Clock defines an interface for time-related operations (to mock ticker).
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) Ticker
}

// Ticker defines an interface for the ticker used in polling.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}
