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

// Package adapters holds the static registration table of vendor source
// adapters.
package adapters

import (
	"github.com/soundops/micwatch/pkg/logger"
	"github.com/soundops/micwatch/pkg/models"
	"github.com/soundops/micwatch/pkg/sync"
	"github.com/soundops/micwatch/pkg/sync/adapters/sennheiser"
	"github.com/soundops/micwatch/pkg/sync/adapters/shure"
)

const (
	sourceTypeShure      = "shure"
	sourceTypeSennheiser = "sennheiser"
)

// DefaultRegistry returns the built-in source-type table. One concrete
// adapter per vendor; selection is by config, never reflection.
func DefaultRegistry() map[string]sync.AdapterFactory {
	return map[string]sync.AdapterFactory{
		sourceTypeShure: func(config *models.SourceConfig, log logger.Logger) sync.SourceAdapter {
			return shure.New(config, log)
		},
		sourceTypeSennheiser: func(config *models.SourceConfig, log logger.Logger) sync.SourceAdapter {
			return sennheiser.New(config, log)
		},
	}
}
