package groupbuy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/groupbuy/backend/internal/domain/groupbuy"
	"github.com/groupbuy/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// SweepError records one group the sweep could not process
type SweepError struct {
	GroupID uuid.UUID `json:"groupId"`
	Stage   string    `json:"stage"`
	Error   string    `json:"error"`
}

// SweepResult summarizes one sweep run
type SweepResult struct {
	Scanned       int          `json:"scanned"`
	Expired       int          `json:"expired"`
	RemindersSent int          `json:"remindersSent"`
	Errors        []SweepError `json:"errors"`
	StartedAt     time.Time    `json:"startedAt"`
	Duration      string       `json:"duration"`
}

// Sweeper expires open groups past their deadline and sends deadline
// reminders. Running it twice for the same instant sends nothing twice.
type Sweeper struct {
	service    *Service
	reminders  groupbuy.ReminderLog
	dispatcher groupbuy.Dispatcher
	windows    []groupbuy.ReminderWindow
	flight     singleflight.Group
	timeout    time.Duration
	logger     *zap.Logger
}

// DefaultSweepTimeout bounds one sweep pass
const DefaultSweepTimeout = 5 * time.Minute

// NewSweeper creates a sweeper over the service's repository
func NewSweeper(
	service *Service,
	reminders groupbuy.ReminderLog,
	dispatcher groupbuy.Dispatcher,
	windows []groupbuy.ReminderWindow,
	logger *zap.Logger,
) *Sweeper {
	if len(windows) == 0 {
		windows = groupbuy.DefaultReminderWindows
	}
	return &Sweeper{
		service:    service,
		reminders:  reminders,
		dispatcher: dispatcher,
		windows:    windows,
		timeout:    DefaultSweepTimeout,
		logger:     logger,
	}
}

// SetTimeout overrides the bound on one pass
func (s *Sweeper) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Sweep runs one pass. Concurrent callers share the pass already running.
// The pass is detached from the caller's cancellation so a disconnecting
// caller does not cut it short for the others; it is bounded by the sweep
// timeout instead.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	v, err, joined := s.flight.Do("sweep", func() (any, error) {
		passCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.sweep(passCtx)
	})
	if err != nil {
		return nil, err
	}
	if joined {
		s.logger.Debug("joined in-flight sweep")
	}
	return v.(*SweepResult), nil
}

func (s *Sweeper) sweep(ctx context.Context) (*SweepResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "group_order", "sweep")
	defer span.End()

	now := s.service.Now()
	result := &SweepResult{StartedAt: now, Errors: make([]SweepError, 0)}

	ids, err := s.service.repo.FindOpenIDs(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	result.Scanned = len(ids)
	telemetry.SetAttributes(span, telemetry.SpanAttrScanned, result.Scanned)

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("sweep interrupted", zap.Int("remaining", result.Scanned-i), zap.Error(err))
			break
		}
		s.sweepOne(ctx, id, now, result)
	}

	result.Duration = s.service.Now().Sub(now).String()
	s.logger.Info("sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("expired", result.Expired),
		zap.Int("reminders_sent", result.RemindersSent),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, id uuid.UUID, now time.Time, result *SweepResult) {
	g, err := s.service.repo.FindByID(ctx, id)
	if err != nil {
		result.addError(id, "load", err)
		s.logger.Error("sweep: failed to load group", zap.String("group_id", id.String()), zap.Error(err))
		return
	}
	if g.Status != groupbuy.StatusOpen {
		return
	}

	if g.IsPastDeadline(now) {
		expired, err := s.service.expire(ctx, id, now)
		if err != nil {
			result.addError(id, "expire", err)
			s.logger.Error("sweep: failed to expire group", zap.String("group_id", id.String()), zap.Error(err))
			return
		}
		if expired {
			result.Expired++
		}
		return
	}

	window, due := groupbuy.DueReminderWindow(s.windows, g.Deadline, now)
	if !due || g.HasReminderBeenSent(window) {
		return
	}

	claimed, err := s.reminders.Claim(ctx, id, window, now)
	if err != nil {
		result.addError(id, "claim", err)
		s.logger.Error("sweep: failed to claim reminder", zap.String("group_id", id.String()), zap.Error(err))
		return
	}
	if !claimed {
		return
	}

	err = s.dispatcher.SendReminder(ctx, groupbuy.Reminder{
		GroupID:          g.ID,
		ProductName:      g.Product.Name,
		Window:           window,
		Deadline:         g.Deadline,
		CurrentQty:       g.CurrentQty,
		TargetQty:        g.TargetQty,
		CurrentUnitPrice: g.CurrentUnitPrice,
		Currency:         string(g.Product.Currency),
		Recipients:       groupbuy.RecipientsOf(g),
	})
	if err != nil {
		// a later sweep retries the window
		if rerr := s.reminders.Release(ctx, id, window); rerr != nil {
			s.logger.Error("sweep: failed to release reminder claim",
				zap.String("group_id", id.String()),
				zap.String("window", string(window)),
				zap.Error(rerr))
		}
		result.addError(id, "remind", err)
		s.logger.Warn("sweep: reminder delivery failed",
			zap.String("group_id", id.String()),
			zap.String("window", string(window)),
			zap.Error(err))
		return
	}

	result.RemindersSent++
	s.service.metrics.RecordReminder(ctx, string(window))
	s.logger.Info("reminder sent",
		zap.String("group_id", id.String()),
		zap.String("window", string(window)),
		zap.Int("recipients", len(g.Participants)))
}

func (r *SweepResult) addError(id uuid.UUID, stage string, err error) {
	r.Errors = append(r.Errors, SweepError{GroupID: id, Stage: stage, Error: err.Error()})
}
