package service

import (
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"mediation_desk/internal/domain"
)

func auditTypes(entries []*domain.AuditEntry) []string {
	return lo.Map(entries, func(e *domain.AuditEntry, _ int) string { return e.EventType })
}

func TestAuditService_Lifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("should record create, first join and close", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)

		buyer := f.login(t, "bianca")
		seller := f.login(t, "sergio")
		r := f.createRequest(t, buyer)

		_, err := f.services.Mediation.Join(ctx, r.ID, seller.UserID, seller.DisplayName, "seller")
		req.NoError(err)
		_, err = f.services.Mediation.Join(ctx, r.ID, seller.UserID, seller.DisplayName, "seller")
		req.NoError(err)
		_, err = f.services.Mediation.Complete(ctx, r.ID, seller.UserID)
		req.NoError(err)

		entries, err := f.services.Audit.ListForRequest(ctx, r.ID)
		req.NoError(err)
		req.Equal([]string{
			domain.EventTypeRequestCreated,
			domain.EventTypeRoleJoined,
			domain.EventTypeRequestCompleted,
		}, auditTypes(entries))

		req.Equal(buyer.UserID, *entries[0].ActorUserID)
		req.Equal("Vintage camera", entries[0].Payload["title"])
		req.Equal("seller", entries[1].ActorRole)
		req.Equal(f.clock.Now(), entries[2].EventTime)
	})

	t.Run("should attribute janitor expiry to the system", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		j := newTestJanitor(t, f, newRecordingRooms(), "@hourly")

		buyer := f.login(t, "bianca")
		r := f.createRequest(t, buyer)

		f.clock.Advance(8 * 24 * time.Hour)
		_, err := j.Sweep(ctx, f.clock.Now())
		req.NoError(err)

		entries, err := f.services.Audit.ListForRequest(ctx, r.ID)
		req.NoError(err)
		req.ElementsMatch([]string{
			domain.EventTypeRequestCreated,
			domain.EventTypeSessionExpired,
			domain.EventTypeRequestExpired,
		}, auditTypes(entries))

		expired, ok := lo.Find(entries, func(e *domain.AuditEntry) bool {
			return e.EventType == domain.EventTypeRequestExpired
		})
		req.True(ok)
		req.Nil(expired.ActorUserID)
		req.Equal(domain.ActorRoleSystem, expired.ActorRole)
	})

	t.Run("should return nothing for an unknown request", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)

		entries, err := f.services.Audit.ListForRequest(ctx, "NOPE0000")
		req.NoError(err)
		req.Empty(entries)
	})
}
