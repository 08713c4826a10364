package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"agora/internal/models"
	"agora/internal/observability"
	"agora/internal/repository"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultToggleMaxAttempts = 3
	DefaultToggleRetryBase   = 10 * time.Millisecond
)

// ToggleResult is the edge state after a toggle and the counter change it caused.
type ToggleResult struct {
	Ref          models.ContentRef   `json:"ref"`
	Counter      models.CounterField `json:"counter"`
	State        models.EdgeState    `json:"state"`
	DeltaApplied int64               `json:"delta_applied"`
	Attempts     int                 `json:"-"`
}

// EngagementService runs the like/vote toggle state machine.
type EngagementService struct {
	store       repository.ContentStore
	maxAttempts uint
	retryBase   time.Duration
}

func NewEngagementService(store repository.ContentStore, maxAttempts int, retryBase time.Duration) *EngagementService {
	if maxAttempts < 1 {
		maxAttempts = DefaultToggleMaxAttempts
	}
	if retryBase <= 0 {
		retryBase = DefaultToggleRetryBase
	}
	return &EngagementService{store: store, maxAttempts: uint(maxAttempts), retryBase: retryBase}
}

// plan derives the compare-and-swap step that moves the observed edge toward d.
//
//	none    --d--> d     counter += w(d)
//	d       --d--> none  counter -= w(d)
//	d1      --d--> d     counter += w(d) - w(d1)
func plan(c *models.Content, principal models.Principal, observed *models.EngagementEdge, d models.Direction) (models.EdgeTransition, models.EdgeState) {
	t := models.EdgeTransition{Ref: c.Ref, Principal: principal, Counter: c.Style.Counter()}
	switch {
	case observed == nil:
		t.To = &d
		t.Delta = d.Weight()
		return t, models.EdgeState{HasEdge: true, Direction: d}
	case observed.Direction == d:
		from := observed.Direction
		t.From = &from
		t.Delta = -from.Weight()
		return t, models.EdgeState{}
	default:
		from := observed.Direction
		t.From = &from
		t.To = &d
		t.Delta = d.Weight() - from.Weight()
		return t, models.EdgeState{HasEdge: true, Direction: d}
	}
}

// Toggle applies direction d for principal on ref. Lost races are retried with
// jittered exponential backoff up to the configured attempts, then surface as Conflict.
func (s *EngagementService) Toggle(ctx context.Context, ref models.ContentRef, principal models.Principal, d models.Direction) (*ToggleResult, *models.Content, error) {
	ctx, span := observability.StartSpan(ctx, "engagement", "Toggle",
		attribute.String("content", ref.String()), attribute.String("direction", string(d)))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if !principal.Valid() {
		err = models.NewValidationError("principal is required")
		return nil, nil, err
	}

	attempts := 0
	var content *models.Content
	op := func() (*ToggleResult, error) {
		attempts++
		c, err := s.store.GetContent(ctx, ref)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if c.IsDeleted {
			return nil, backoff.Permanent(models.NewNotFoundError(string(ref.Type), ref.ID))
		}
		if !c.Style.Supports(d) {
			return nil, backoff.Permanent(models.NewInvalidDirectionError(d, c.Style))
		}
		content = c

		observed, err := s.store.GetEdge(ctx, ref, principal)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		t, next := plan(c, principal, observed, d)
		if err := s.store.ApplyEdgeTransition(ctx, t); err != nil {
			if models.KindOf(err) == models.KindConflict {
				observability.EngagementConflicts.WithLabelValues("retried").Inc()
				observability.Logger.DebugContext(ctx, "toggle lost race, re-reading",
					slog.String("content", ref.String()), slog.Int("attempt", attempts))
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}

		observability.Logger.DebugContext(ctx, "engagement toggled",
			slog.String("content", ref.String()),
			slog.String("from", stateOf(observed).String()),
			slog.String("to", next.String()),
			slog.Int64("delta", t.Delta))
		return &ToggleResult{Ref: ref, Counter: t.Counter, State: next, DeltaApplied: t.Delta}, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryBase
	policy.MaxInterval = 20 * s.retryBase

	var result *ToggleResult
	result, err = backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(s.maxAttempts),
	)
	if err != nil {
		err = toAppError(err)
		if models.KindOf(err) == models.KindConflict {
			observability.EngagementConflicts.WithLabelValues("exhausted").Inc()
		}
		observability.EngagementToggles.WithLabelValues(string(ref.Type), string(models.KindOf(err))).Inc()
		return nil, nil, err
	}

	result.Attempts = attempts
	observability.EngagementToggles.WithLabelValues(string(ref.Type), outcome(result)).Inc()
	return result, content, nil
}

func stateOf(e *models.EngagementEdge) models.EdgeState {
	if e == nil {
		return models.EdgeState{}
	}
	return models.EdgeState{HasEdge: true, Direction: e.Direction}
}

func outcome(r *ToggleResult) string {
	switch {
	case !r.State.HasEdge:
		return "removed"
	case r.DeltaApplied == r.State.Direction.Weight():
		return "added"
	default:
		return "switched"
	}
}

// toAppError keeps application errors and classifies anything else, such as a
// context error from the retry wait, as a store failure.
func toAppError(err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewStoreUnavailableError(err)
}
