// ABOUTME: Tests for audit log store operations
// ABOUTME: Covers Append and List with filtering for the audit_log table

package store

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// auditStores runs a test against both implementations.
func auditStores(t *testing.T, fn func(t *testing.T, s AuditStore)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, setupTestStore(t)) })
	t.Run("mock", func(t *testing.T) { fn(t, NewMockStore()) })
}

func TestAuditStore_Append(t *testing.T) {
	auditStores(t, func(t *testing.T, s AuditStore) {
		ctx := context.Background()
		entry := &AuditEntry{
			Actor:      "integrator",
			Action:     AuditRegisterDevice,
			TargetType: "device",
			TargetID:   "12",
			Detail:     map[string]any{"model": "HX-200"},
		}

		require.NoError(t, s.AppendAuditLog(ctx, entry))
		assert.NotEqual(t, uuid.Nil, entry.ID)
		assert.False(t, entry.Timestamp.IsZero())
		assert.Equal(t, OutcomeOK, entry.Outcome)

		entries, err := s.ListAuditLog(ctx, AuditFilter{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, entry.ID, entries[0].ID)
		assert.Equal(t, "HX-200", entries[0].Detail["model"])
	})
}

func TestAuditStore_List_NewestFirst(t *testing.T) {
	auditStores(t, func(t *testing.T, s AuditStore) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		// The sub-second offsets check that ordering does not depend on
		// how many fractional digits a timestamp has.
		offsets := []time.Duration{0, 1500 * time.Millisecond, time.Second + 120*time.Millisecond}
		actions := []AuditAction{AuditRegisterCustomer, AuditRegisterBuilding, AuditRegisterDevice}
		for i, action := range actions {
			require.NoError(t, s.AppendAuditLog(ctx, &AuditEntry{
				Actor:      "integrator",
				Action:     action,
				TargetType: "entity",
				TargetID:   strconv.Itoa(i),
				Timestamp:  base.Add(offsets[i]),
			}))
		}

		entries, err := s.ListAuditLog(ctx, AuditFilter{})
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, AuditRegisterBuilding, entries[0].Action)
		assert.Equal(t, AuditRegisterDevice, entries[1].Action)
		assert.Equal(t, AuditRegisterCustomer, entries[2].Action)
	})
}

func TestAuditStore_List_Filters(t *testing.T) {
	auditStores(t, func(t *testing.T, s AuditStore) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		seed := []AuditEntry{
			{Actor: "integrator", Action: AuditCrossCheck, TargetType: "device", TargetID: "1", Outcome: OutcomeOK},
			{Actor: "integrator", Action: AuditCrossCheck, TargetType: "device", TargetID: "2", Outcome: OutcomeFailed},
			{Actor: "admin", Action: AuditUpdateWealthScore, TargetType: "customer", TargetID: "1"},
		}
		for i := range seed {
			seed[i].Timestamp = base.Add(time.Duration(i) * 10 * time.Minute)
			require.NoError(t, s.AppendAuditLog(ctx, &seed[i]))
		}

		byActor, err := s.ListAuditLog(ctx, AuditFilter{Actor: "admin"})
		require.NoError(t, err)
		assert.Len(t, byActor, 1)

		byAction, err := s.ListAuditLog(ctx, AuditFilter{Action: AuditCrossCheck})
		require.NoError(t, err)
		assert.Len(t, byAction, 2)

		byTarget, err := s.ListAuditLog(ctx, AuditFilter{TargetType: "device", TargetID: "2"})
		require.NoError(t, err)
		require.Len(t, byTarget, 1)
		assert.Equal(t, OutcomeFailed, byTarget[0].Outcome)

		since := base.Add(5 * time.Minute)
		recent, err := s.ListAuditLog(ctx, AuditFilter{Since: &since})
		require.NoError(t, err)
		assert.Len(t, recent, 2)

		until := base.Add(5 * time.Minute)
		early, err := s.ListAuditLog(ctx, AuditFilter{Until: &until})
		require.NoError(t, err)
		assert.Len(t, early, 1)
	})
}

func TestAuditStore_List_Limit(t *testing.T) {
	auditStores(t, func(t *testing.T, s AuditStore) {
		ctx := context.Background()
		for i := range 5 {
			require.NoError(t, s.AppendAuditLog(ctx, &AuditEntry{
				Actor:      "integrator",
				Action:     AuditLinkDeviceState,
				TargetType: "device",
				TargetID:   strconv.Itoa(i),
			}))
		}

		entries, err := s.ListAuditLog(ctx, AuditFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})
}

func TestAuditStore_List_EmptyIsNotNil(t *testing.T) {
	auditStores(t, func(t *testing.T, s AuditStore) {
		entries, err := s.ListAuditLog(context.Background(), AuditFilter{})
		require.NoError(t, err)
		assert.NotNil(t, entries)
		assert.Empty(t, entries)
	})
}

func TestNormalizeAuditLimit(t *testing.T) {
	assert.Equal(t, 100, normalizeAuditLimit(0))
	assert.Equal(t, 100, normalizeAuditLimit(-3))
	assert.Equal(t, 50, normalizeAuditLimit(50))
	assert.Equal(t, 1000, normalizeAuditLimit(5000))
}

func TestAuditStore_InvalidOutcomeRejected(t *testing.T) {
	store := setupTestStore(t)

	err := store.AppendAuditLog(context.Background(), &AuditEntry{
		Actor:      "integrator",
		Action:     AuditCrossCheck,
		TargetType: "device",
		TargetID:   "1",
		Outcome:    "maybe",
	})
	assert.ErrorIs(t, err, ErrConstraint)
}
