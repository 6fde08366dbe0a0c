package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/soundops/micwatch/pkg/models"
	"github.com/soundops/micwatch/pkg/sync"
)

var (
	_ sync.EventSink = (*Publisher)(nil)
	_ sync.EventSink = NopSink{}
)

func TestNopSink(t *testing.T) {
	sink := NopSink{}
	ctx := context.Background()

	assert.NoError(t, sink.PublishDeviceChange(ctx, &models.DeviceChangeEvent{DeviceRef: "dev-1"}))
	assert.NoError(t, sink.PublishReviewRequested(ctx, &models.ConflictEntry{ID: "c-1"}))
}
