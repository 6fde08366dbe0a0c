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
	"errors"
	"fmt"
	"time"

	"github.com/soundops/micwatch/pkg/logger"
	"github.com/soundops/micwatch/pkg/models"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultStaleAfter   = 5 * time.Minute
)

var (
	errMissingSources = errors.New("at least one source must be defined")
	errMissingFields  = errors.New("source missing required fields (type, endpoint)")
)

type Config struct {
	// Sources maps source id -> vendor API config. The map key is the
	// sourceId that scopes apiDeviceId values.
	Sources map[string]*models.SourceConfig `json:"sources"`

	// PollInterval is the default per-source poll cadence.
	PollInterval models.Duration `json:"poll_interval"`

	// StaleAfter is the staleness window after which an unseen
	// Online/Degraded device is demoted to Offline.
	StaleAfter models.Duration `json:"stale_after"`

	// NATSURL is the JetStream server receiving device-change events.
	NATSURL string `json:"nats_url,omitempty"`

	// Database selects the Postgres registry store. When nil the
	// in-memory store is used.
	Database *models.DatabaseConfig `json:"database,omitempty"`

	Logging *logger.Config `json:"logging,omitempty"`
}

func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return errMissingSources
	}

	if time.Duration(c.PollInterval) == 0 {
		c.PollInterval = models.Duration(defaultPollInterval)
	}

	if time.Duration(c.StaleAfter) == 0 {
		c.StaleAfter = models.Duration(defaultStaleAfter)
	}

	for sourceID, src := range c.Sources {
		if src == nil || src.Type == "" || src.Endpoint == "" {
			return fmt.Errorf("source %s: %w", sourceID, errMissingFields)
		}

		if time.Duration(src.PollInterval) == 0 {
			src.PollInterval = c.PollInterval
		}
	}

	return nil
}
