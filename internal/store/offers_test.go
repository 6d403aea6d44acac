// ABOUTME: Tests for offers and offer reactions against SQLite and the mock
// ABOUTME: Both implementations must agree on defaults, ordering and constraints

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offerStores(t *testing.T) map[string]BusinessStore {
	return map[string]BusinessStore{
		"sqlite": setupTestStore(t),
		"mock":   NewMockStore(),
	}
}

func TestStore_Offer(t *testing.T) {
	for name, s := range offerStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			customerID, _, _ := seedDevice(t, s)

			valid := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
			o := &Offer{CustomerID: customerID, NetValue: 10000, GrossValue: 12300, ValidUntil: &valid, Content: "split unit"}
			id, err := s.CreateOffer(ctx, o)
			require.NoError(t, err)
			assert.Equal(t, id, o.ID)

			got, err := s.GetOffer(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, OfferDraft, got.Status)
			assert.Equal(t, "PLN", got.Currency)
			assert.Equal(t, 12300.0, got.GrossValue)
			assert.Equal(t, "split unit", got.Content)
			require.NotNil(t, got.ValidUntil)
			assert.True(t, got.ValidUntil.Equal(valid))
			assert.Nil(t, got.SignedAt)

			signed := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
			require.NoError(t, s.MarkOfferSigned(ctx, id, signed))
			got, err = s.GetOffer(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, OfferSigned, got.Status)
			require.NotNil(t, got.SignedAt)
			assert.True(t, got.SignedAt.Equal(signed))
		})
	}
}

func TestStore_Offer_Errors(t *testing.T) {
	for name, s := range offerStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.CreateOffer(ctx, &Offer{CustomerID: 404})
			assert.ErrorIs(t, err, ErrConstraint)

			_, err = s.GetOffer(ctx, 404)
			assert.ErrorIs(t, err, ErrNotFound)

			assert.ErrorIs(t, s.MarkOfferSigned(ctx, 404, time.Now()), ErrNotFound)

			_, err = s.RecordOfferReaction(ctx, &OfferReaction{OfferID: 404, ReactionType: "opened"})
			assert.ErrorIs(t, err, ErrConstraint)
		})
	}
}

func TestStore_OfferReactions(t *testing.T) {
	for name, s := range offerStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			customerID, _, _ := seedDevice(t, s)
			offerID, err := s.CreateOffer(ctx, &Offer{CustomerID: customerID})
			require.NoError(t, err)
			other, err := s.CreateOffer(ctx, &Offer{CustomerID: customerID})
			require.NoError(t, err)

			empty, err := s.ListOfferReactions(ctx, offerID)
			require.NoError(t, err)
			assert.NotNil(t, empty)
			assert.Empty(t, empty)

			spent := int64(42)
			base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
			_, err = s.RecordOfferReaction(ctx, &OfferReaction{OfferID: offerID, ReactionType: "opened", OccurredAt: base, SecondsSpent: &spent, IPAddress: "10.0.0.1"})
			require.NoError(t, err)
			_, err = s.RecordOfferReaction(ctx, &OfferReaction{OfferID: offerID, ReactionType: "signed", OccurredAt: base.Add(time.Hour)})
			require.NoError(t, err)
			_, err = s.RecordOfferReaction(ctx, &OfferReaction{OfferID: other, ReactionType: "opened", OccurredAt: base})
			require.NoError(t, err)

			got, err := s.ListOfferReactions(ctx, offerID)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "opened", got[0].ReactionType)
			require.NotNil(t, got[0].SecondsSpent)
			assert.Equal(t, int64(42), *got[0].SecondsSpent)
			assert.Equal(t, "10.0.0.1", got[0].IPAddress)
			assert.Equal(t, "signed", got[1].ReactionType)
			assert.Nil(t, got[1].SecondsSpent)
		})
	}
}
