package votes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/emilythestrangee/reddit-clone/voteledger/internal/logger"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/models"
)

const tracerName = "github.com/emilythestrangee/reddit-clone/voteledger/internal/votes"

const (
	opToggle    = "vote.toggle"
	opClear     = "vote.clear"
	opAudit     = "vote.audit"
	opReconcile = "vote.reconcile"
)

type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Deps struct {
	Runner TxRunner
	Cache  StateCache
	Hooks  Hooks
	Clock  clockwork.Clock
	Log    *logger.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Cache == nil {
		d.Cache = noopCache{}
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	return d
}

// Result is the outcome of a Toggle or Clear. Changed is false for no-ops.
type Result struct {
	ItemID  uuid.UUID        `json:"item_id"`
	Score   int64            `json:"score"`
	State   models.VoteState `json:"state"`
	Changed bool             `json:"changed"`
}

// Engine owns every write to the ledger and the item counters.
type Engine struct {
	deps   Deps
	cfg    Config
	tracer trace.Tracer
}

func NewEngine(deps Deps, cfg Config) *Engine {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	return &Engine{
		deps:   deps.withDefaults(),
		cfg:    cfg,
		tracer: otel.Tracer(tracerName),
	}
}

// Toggle records userID's vote on itemID in direction dir.
// Re-voting the recorded direction is a no-op; the opposite direction flips the vote.
func (e *Engine) Toggle(ctx context.Context, itemID, userID uuid.UUID, dir models.Direction) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "votes.Toggle", trace.WithAttributes(
		attribute.String("vote.item_id", itemID.String()),
		attribute.String("vote.direction", string(dir)),
	))
	defer span.End()

	if userID == uuid.Nil {
		return nil, endSpan(span, ErrUnauthorized)
	}
	if !dir.Valid() {
		return nil, endSpan(span, fmt.Errorf("%w: %w", ErrMalformedInput, models.ErrInvalidDirection))
	}

	var res *Result
	err := e.execute(ctx, opToggle, func(tx Tx) error {
		score, err := tx.Counter().Score(ctx, itemID)
		if err != nil {
			return err
		}
		existing, err := tx.Ledger().Find(ctx, itemID, userID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Direction == dir {
			res = &Result{ItemID: itemID, Score: score, State: models.StateOf(dir)}
			return nil
		}

		delta := dir.Weight()
		if existing != nil {
			if err := tx.Ledger().Remove(ctx, existing); err != nil {
				return err
			}
			delta -= existing.Direction.Weight()
		}
		rec := &models.VoteRecord{
			ID:        uuid.New(),
			ItemID:    itemID,
			UserID:    userID,
			Direction: dir,
			CreatedAt: e.deps.Clock.Now().UTC(),
		}
		if err := tx.Ledger().Insert(ctx, rec); err != nil {
			return err
		}
		score, err = tx.Counter().ApplyDelta(ctx, itemID, delta)
		if err != nil {
			return err
		}
		res = &Result{ItemID: itemID, Score: score, State: models.StateOf(dir), Changed: true}
		return nil
	})
	if err != nil {
		return nil, endSpan(span, err)
	}

	span.SetAttributes(attribute.Bool("vote.changed", res.Changed), attribute.Int64("vote.score", res.Score))
	if res.Changed {
		e.invalidate(ctx, userID, itemID)
	}
	return res, nil
}

// Clear removes userID's vote on itemID, if any, and reverts its weight.
func (e *Engine) Clear(ctx context.Context, itemID, userID uuid.UUID) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "votes.Clear", trace.WithAttributes(
		attribute.String("vote.item_id", itemID.String()),
	))
	defer span.End()

	if userID == uuid.Nil {
		return nil, endSpan(span, ErrUnauthorized)
	}

	var res *Result
	err := e.execute(ctx, opClear, func(tx Tx) error {
		score, err := tx.Counter().Score(ctx, itemID)
		if err != nil {
			return err
		}
		existing, err := tx.Ledger().Find(ctx, itemID, userID)
		if err != nil {
			return err
		}
		if existing == nil {
			res = &Result{ItemID: itemID, Score: score}
			return nil
		}
		if err := tx.Ledger().Remove(ctx, existing); err != nil {
			return err
		}
		score, err = tx.Counter().ApplyDelta(ctx, itemID, -existing.Direction.Weight())
		if err != nil {
			return err
		}
		res = &Result{ItemID: itemID, Score: score, Changed: true}
		return nil
	})
	if err != nil {
		return nil, endSpan(span, err)
	}

	span.SetAttributes(attribute.Bool("vote.changed", res.Changed), attribute.Int64("vote.score", res.Score))
	if res.Changed {
		e.invalidate(ctx, userID, itemID)
	}
	return res, nil
}

// Audit compares the item's counter with the sum of its ledger.
func (e *Engine) Audit(ctx context.Context, itemID uuid.UUID) (*models.ScoreAudit, error) {
	ctx, span := e.tracer.Start(ctx, "votes.Audit", trace.WithAttributes(
		attribute.String("vote.item_id", itemID.String()),
	))
	defer span.End()

	var audit models.ScoreAudit
	err := e.execute(ctx, opAudit, func(tx Tx) error {
		var err error
		audit, err = auditTx(ctx, tx, itemID, false)
		return err
	})
	if err != nil {
		return nil, endSpan(span, err)
	}
	span.SetAttributes(attribute.Int64("vote.drift", audit.Drift))
	return &audit, nil
}

// Reconcile resets the counter to baseline + ledger sum when it has drifted.
// The returned audit describes the state found before the fix.
func (e *Engine) Reconcile(ctx context.Context, itemID uuid.UUID) (*models.ScoreAudit, error) {
	ctx, span := e.tracer.Start(ctx, "votes.Reconcile", trace.WithAttributes(
		attribute.String("vote.item_id", itemID.String()),
	))
	defer span.End()

	var audit models.ScoreAudit
	err := e.execute(ctx, opReconcile, func(tx Tx) error {
		var err error
		// The row lock keeps toggles from committing between the sum and the rewrite.
		audit, err = auditTx(ctx, tx, itemID, true)
		if err != nil || audit.Drift == 0 {
			return err
		}
		return tx.Counter().SetScore(ctx, itemID, audit.Baseline+audit.LedgerSum)
	})
	if err != nil {
		return nil, endSpan(span, err)
	}
	if audit.Drift != 0 {
		e.deps.Log.Warn("score drift reconciled",
			"item_id", itemID,
			"score", audit.Score,
			"expected", audit.Baseline+audit.LedgerSum,
			"drift", audit.Drift,
		)
	}
	span.SetAttributes(attribute.Int64("vote.drift", audit.Drift))
	return &audit, nil
}

func auditTx(ctx context.Context, tx Tx, itemID uuid.UUID, lock bool) (models.ScoreAudit, error) {
	get := tx.Counter().Get
	if lock {
		get = tx.Counter().GetForUpdate
	}
	item, err := get(ctx, itemID)
	if err != nil {
		return models.ScoreAudit{}, err
	}
	sum, err := tx.Ledger().Sum(ctx, itemID)
	if err != nil {
		return models.ScoreAudit{}, err
	}
	return models.NewScoreAudit(item, sum), nil
}

// execute runs fn in a transaction, retrying write conflicts with exponential backoff.
func (e *Engine) execute(ctx context.Context, op string, fn func(tx Tx) error) error {
	start := e.deps.Clock.Now()
	attempt := 0

	operation := func() error {
		attempt++
		err := e.deps.Runner.InTx(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrConflict) {
			e.deps.Hooks.IncConflict(op)
			return err
		}
		return backoff.Permanent(err)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = e.cfg.InitialBackoff
	exp.MaxInterval = e.cfg.MaxBackoff
	exp.MaxElapsedTime = 0
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if e.cfg.MaxAttempts > 1 {
		policy = backoff.WithMaxRetries(exp, uint64(e.cfg.MaxAttempts-1))
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		e.deps.Hooks.IncRetry(op)
		e.deps.Log.Debug("retrying vote transaction",
			"op", op,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	})

	e.deps.Hooks.ObserveOperation(op, KindOf(err), e.deps.Clock.Since(start))
	if err != nil && errors.Is(err, ErrConflict) {
		e.deps.Log.Warn("vote transaction gave up after conflicts", "op", op, "attempts", attempt)
	}
	return err
}

func (e *Engine) invalidate(ctx context.Context, userID, itemID uuid.UUID) {
	if err := e.deps.Cache.Invalidate(ctx, userID, itemID); err != nil {
		e.deps.Log.Warn("failed to invalidate vote state cache",
			"user_id", userID,
			"item_id", itemID,
			"error", err,
		)
	}
}

func endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, KindOf(err))
	return err
}
