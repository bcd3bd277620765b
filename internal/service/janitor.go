package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"mediation_desk/internal/domain"
	"mediation_desk/internal/metrics"
	"mediation_desk/pkg/logger"
)

// RoomCloser drops a request's live room once the request is closed.
type RoomCloser interface {
	CloseRoom(requestID string, status domain.RequestStatus)
}

type SweepResult struct {
	ExpiredSessions   int
	CancelledRequests []string
}

// Janitor enforces the idle expiry policies. Sweep is deterministic for a
// given now; Run drives it from a cron schedule until ctx is cancelled.
type Janitor struct {
	sessions  SessionService
	mediation MediationService
	audit     AuditService
	rooms     RoomCloser
	schedule  string
	metrics   *metrics.Metrics
	now       Clock
	log       logger.Logger
}

func NewJanitor(
	sessions SessionService,
	mediation MediationService,
	audit AuditService,
	rooms RoomCloser,
	schedule string,
	m *metrics.Metrics,
	now Clock,
	log logger.Logger,
) (*Janitor, error) {
	if !gronx.IsValid(schedule) {
		return nil, fmt.Errorf("invalid janitor schedule: %s", schedule)
	}
	if now == nil {
		now = time.Now
	}
	return &Janitor{
		sessions:  sessions,
		mediation: mediation,
		audit:     audit,
		rooms:     rooms,
		schedule:  schedule,
		metrics:   m,
		now:       now,
		log:       log,
	}, nil
}

// Sweep runs both expiry passes. A failure in one does not skip the other.
func (j *Janitor) Sweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	result := &SweepResult{}
	var errs []error

	expired, err := j.sessions.ExpireIdle(ctx, now)
	if err != nil {
		errs = append(errs, err)
	} else {
		result.ExpiredSessions = len(expired)
		j.metrics.SessionsExpired.Add(float64(len(expired)))
		for _, session := range expired {
			requestID := ""
			if session.LinkedRequestID != nil {
				requestID = *session.LinkedRequestID
			}
			j.audit.LogEvent(ctx, &session.UserID, domain.ActorRoleSystem, requestID, domain.EventTypeSessionExpired, map[string]interface{}{
				"display_name": session.DisplayName,
			})
		}
	}

	cancelled, err := j.mediation.CancelStale(ctx, now)
	if err != nil {
		errs = append(errs, err)
	} else {
		result.CancelledRequests = cancelled
		j.metrics.RequestsCancelled.Add(float64(len(cancelled)))
		for _, id := range cancelled {
			j.rooms.CloseRoom(id, domain.RequestStatusCancelled)
		}
	}

	if len(errs) > 0 {
		j.metrics.Sweeps.WithLabelValues("error").Inc()
		return result, errors.Join(errs...)
	}
	j.metrics.Sweeps.WithLabelValues("ok").Inc()

	if result.ExpiredSessions > 0 || len(result.CancelledRequests) > 0 {
		j.log.Info("Janitor sweep finished",
			"expired_sessions", result.ExpiredSessions,
			"cancelled_requests", len(result.CancelledRequests))
	}
	return result, nil
}

// Run blocks until ctx is done, sweeping at every tick of the schedule.
func (j *Janitor) Run(ctx context.Context) {
	j.log.Info("Janitor started", "schedule", j.schedule)
	for {
		now := j.now()
		next, err := gronx.NextTickAfter(j.schedule, now, false)
		if err != nil {
			j.log.Error("Failed to compute next janitor tick", "error", err)
			next = now.Add(time.Minute)
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			j.log.Info("Janitor stopped")
			return
		case <-timer.C:
		}

		if _, err := j.Sweep(ctx, j.now()); err != nil {
			j.log.Error("Janitor sweep failed", "error", err)
		}
	}
}
