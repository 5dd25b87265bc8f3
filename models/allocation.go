package models

import (
	"time"

	"gorm.io/datatypes"
)

// Metadata keys holding the allocation bookkeeping of an invoice.
const (
	MetaAllocationReservedAt    = "allocation.reserved_at"
	MetaAllocationReleasedAt    = "allocation.released_at"
	MetaAllocationReReservedAt  = "allocation.re_reserved_at"
	MetaAllocationLastAction    = "allocation.last_action"
	MetaAllocationReleaseReason = "allocation.release_reason"
)

// AllocationAction is the last allocation change applied to an invoice.
type AllocationAction string

const (
	AllocationReserved AllocationAction = "reserved"
	AllocationReleased AllocationAction = "released"
)

// AllocationState is the typed view of the allocation keys in Invoice.Metadata.
// ReleasedAt being set means stock and coupon usage are currently returned to the pool.
type AllocationState struct {
	ReservedAt    *time.Time       `json:"reserved_at,omitempty"`
	ReleasedAt    *time.Time       `json:"released_at,omitempty"`
	ReReservedAt  *time.Time       `json:"re_reserved_at,omitempty"`
	LastAction    AllocationAction `json:"last_action,omitempty"`
	ReleaseReason string           `json:"release_reason,omitempty"`
}

// IsReleased reports whether the allocation has been given back.
func (s AllocationState) IsReleased() bool {
	return s.ReleasedAt != nil
}

// Allocation reads the allocation state out of the invoice metadata.
func (i *Invoice) Allocation() AllocationState {
	return AllocationState{
		ReservedAt:    metaTime(i.Metadata, MetaAllocationReservedAt),
		ReleasedAt:    metaTime(i.Metadata, MetaAllocationReleasedAt),
		ReReservedAt:  metaTime(i.Metadata, MetaAllocationReReservedAt),
		LastAction:    AllocationAction(metaString(i.Metadata, MetaAllocationLastAction)),
		ReleaseReason: metaString(i.Metadata, MetaAllocationReleaseReason),
	}
}

// SetAllocation writes state back into the invoice metadata, leaving unrelated keys untouched.
func (i *Invoice) SetAllocation(state AllocationState) {
	if i.Metadata == nil {
		i.Metadata = datatypes.JSONMap{}
	}
	setMetaTime(i.Metadata, MetaAllocationReservedAt, state.ReservedAt)
	setMetaTime(i.Metadata, MetaAllocationReleasedAt, state.ReleasedAt)
	setMetaTime(i.Metadata, MetaAllocationReReservedAt, state.ReReservedAt)
	setMetaString(i.Metadata, MetaAllocationLastAction, string(state.LastAction))
	setMetaString(i.Metadata, MetaAllocationReleaseReason, state.ReleaseReason)
}

// MarkReserved records the initial reservation made at checkout.
func (i *Invoice) MarkReserved(now time.Time) {
	state := i.Allocation()
	state.ReservedAt = &now
	state.LastAction = AllocationReserved
	i.SetAllocation(state)
}

// MarkReleased records that stock and coupon usage were handed back.
func (i *Invoice) MarkReleased(now time.Time, reason string) {
	state := i.Allocation()
	state.ReleasedAt = &now
	state.LastAction = AllocationReleased
	state.ReleaseReason = reason
	i.SetAllocation(state)
}

// MarkReReserved records a successful re-reservation for a retried payment.
func (i *Invoice) MarkReReserved(now time.Time) {
	state := i.Allocation()
	state.ReleasedAt = nil
	state.ReleaseReason = ""
	state.ReReservedAt = &now
	state.LastAction = AllocationReserved
	i.SetAllocation(state)
}

func metaString(meta datatypes.JSONMap, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

func metaTime(meta datatypes.JSONMap, key string) *time.Time {
	raw := metaString(meta, key)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil
	}
	return &t
}

func setMetaString(meta datatypes.JSONMap, key, value string) {
	if value == "" {
		delete(meta, key)
		return
	}
	meta[key] = value
}

func setMetaTime(meta datatypes.JSONMap, key string, value *time.Time) {
	if value == nil {
		delete(meta, key)
		return
	}
	meta[key] = value.UTC().Format(time.RFC3339Nano)
}
