package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestAllocation_ReleaseAndReReserve(t *testing.T) {
	inv := &Invoice{Metadata: datatypes.JSONMap{"channel": "web"}}
	reservedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	inv.MarkReserved(reservedAt)
	state := inv.Allocation()
	require.NotNil(t, state.ReservedAt)
	assert.True(t, state.ReservedAt.Equal(reservedAt))
	assert.Equal(t, AllocationReserved, state.LastAction)
	assert.False(t, state.IsReleased())

	releasedAt := reservedAt.Add(time.Hour)
	inv.MarkReleased(releasedAt, "payment_failed")
	state = inv.Allocation()
	assert.True(t, state.IsReleased())
	assert.Equal(t, AllocationReleased, state.LastAction)
	assert.Equal(t, "payment_failed", state.ReleaseReason)

	again := releasedAt.Add(time.Minute)
	inv.MarkReReserved(again)
	state = inv.Allocation()
	assert.False(t, state.IsReleased())
	assert.Empty(t, state.ReleaseReason)
	require.NotNil(t, state.ReReservedAt)
	assert.True(t, state.ReReservedAt.Equal(again))
	assert.Equal(t, AllocationReserved, state.LastAction)
	assert.True(t, state.ReservedAt.Equal(reservedAt))

	assert.Equal(t, "web", inv.Metadata["channel"])
	_, hasReleased := inv.Metadata[MetaAllocationReleasedAt]
	assert.False(t, hasReleased)
}

func TestAllocation_EmptyMetadata(t *testing.T) {
	inv := &Invoice{}
	state := inv.Allocation()
	assert.Nil(t, state.ReservedAt)
	assert.False(t, state.IsReleased())

	inv.MarkReleased(time.Now(), "")
	assert.True(t, inv.Allocation().IsReleased())
	_, hasReason := inv.Metadata[MetaAllocationReleaseReason]
	assert.False(t, hasReason)
}
