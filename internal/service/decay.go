package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/clausebank/clausebank/internal/domain"
	"github.com/clausebank/clausebank/internal/store"
	"go.uber.org/zap"
)

const (
	defaultDecayInterval = 1 * time.Hour

	// DecayEpsilon: confidence changes below this are not persisted.
	DecayEpsilon = 0.001
	// DefaultDecayFloor: clauses decaying below this are archived.
	DefaultDecayFloor = 0.1
	// decayWindowDays normalizes elapsed time in the decay formula.
	decayWindowDays = 30.0
)

// DecayConfig is fixed at construction; a run's dryRun flag is the only
// per-call variation.
type DecayConfig struct {
	MinConfidence float64
	Interval      time.Duration
}

func DefaultDecayConfig() DecayConfig {
	return DecayConfig{MinConfidence: DefaultDecayFloor, Interval: defaultDecayInterval}
}

// DecayReport summarizes one batch run.
type DecayReport struct {
	Processed int  `json:"processed"`
	Decayed   int  `json:"decayed"`
	Archived  int  `json:"archived"`
	Errors    int  `json:"errors"`
	DryRun    bool `json:"dry_run"`
}

// DecayEngine periodically reduces confidence of active clauses based on
// elapsed time since access, dampened by reinforcement history. Clauses
// falling below the floor are archived.
type DecayEngine struct {
	clauses domain.ClauseStore
	audit   domain.AuditStore
	cfg     DecayConfig
	logger  *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewDecayEngine(cs domain.ClauseStore, audit domain.AuditStore, cfg DecayConfig, logger *zap.Logger) *DecayEngine {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultDecayFloor
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultDecayInterval
	}
	return &DecayEngine{
		clauses: cs,
		audit:   audit,
		cfg:     cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

func (e *DecayEngine) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.cfg.Interval)
		defer ticker.Stop()

		e.logger.Info("decay worker started", zap.Duration("interval", e.cfg.Interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				if _, err := e.Run(ctx, false); err != nil {
					e.logger.Error("scheduled decay run failed", zap.Error(err))
				}
				cancel()
			case <-e.stopCh:
				e.logger.Info("decay worker stopped")
				return
			}
		}
	}()
}

func (e *DecayEngine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

// decayedConfidence applies the decay formula: elapsed days since last
// access (falling back to recorded_at for never-accessed clauses) scaled by
// a 30-day window, with the per-clause rate dampened logarithmically by
// reinforcement count.
func decayedConfidence(c *domain.Clause, now time.Time) float64 {
	ref := c.RecordedAt
	if c.LastAccessed != nil {
		ref = *c.LastAccessed
	}
	days := now.Sub(ref).Hours() / 24
	if days < 0 {
		days = 0
	}

	timeFactor := days / decayWindowDays
	effectiveRate := c.DecayRate / (1 + math.Log(float64(c.Reinforcements)+1))
	next := c.Confidence - c.Confidence*effectiveRate*timeFactor
	if next < 0 {
		return 0
	}
	return next
}

// Run decays every active clause above the floor. With dryRun the full
// computation happens but nothing is persisted, including audit rows.
func (e *DecayEngine) Run(ctx context.Context, dryRun bool) (*DecayReport, error) {
	clauses, err := e.clauses.ListActiveForDecay(ctx, e.cfg.MinConfidence)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	report := &DecayReport{DryRun: dryRun}

	for i := range clauses {
		c := &clauses[i]
		report.Processed++

		next := decayedConfidence(c, now)

		if next < e.cfg.MinConfidence {
			report.Archived++
			if dryRun {
				continue
			}
			if err := e.clauses.ArchiveWithConfidence(ctx, c.ID, next, now); err != nil {
				report.Archived--
				report.Errors++
				e.logger.Warn("failed to archive decayed clause", zap.String("clause_id", c.ID), zap.Error(err))
				continue
			}
			e.logDecay(ctx, c.ID, c.Confidence, next, "archived_decay")
			continue
		}

		if c.Confidence-next > DecayEpsilon {
			report.Decayed++
			if dryRun {
				continue
			}
			if err := e.clauses.UpdateConfidence(ctx, c.ID, next); err != nil {
				report.Decayed--
				report.Errors++
				e.logger.Warn("failed to update decayed confidence", zap.String("clause_id", c.ID), zap.Error(err))
				continue
			}
			e.logDecay(ctx, c.ID, c.Confidence, next, "scheduled_decay")
		}
	}

	if !dryRun && (report.Decayed > 0 || report.Archived > 0) {
		e.logger.Info("decay run complete",
			zap.Int("processed", report.Processed),
			zap.Int("decayed", report.Decayed),
			zap.Int("archived", report.Archived))
	}
	return report, nil
}

// AdjustConfidence sets an explicit confidence (clamped), logging the change
// to the shared audit trail.
func (e *DecayEngine) AdjustConfidence(ctx context.Context, id string, confidence float64, reason string) error {
	c, err := e.clauses.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrClauseNotFound
		}
		return err
	}
	next := domain.ClampConfidence(confidence)
	if err := e.clauses.UpdateConfidence(ctx, id, next); err != nil {
		return err
	}
	if reason == "" {
		reason = "manual_adjustment"
	}
	e.logDecay(ctx, id, c.Confidence, next, reason)
	return nil
}

// History returns the clause's decay audit trail, newest first.
func (e *DecayEngine) History(ctx context.Context, clauseID string, limit int) ([]domain.DecayLogEntry, error) {
	return e.audit.ListDecayByClause(ctx, clauseID, limit)
}

// EstimateExpirationDays inverts the decay formula: the days until the
// clause would cross the floor absent reinforcement or access. Returns +Inf
// for clauses that never decay.
func (e *DecayEngine) EstimateExpirationDays(ctx context.Context, id string) (float64, error) {
	c, err := e.clauses.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrClauseNotFound
		}
		return 0, err
	}

	if c.Confidence <= e.cfg.MinConfidence {
		return 0, nil
	}
	effectiveRate := c.DecayRate / (1 + math.Log(float64(c.Reinforcements)+1))
	if effectiveRate <= 0 {
		return math.Inf(1), nil
	}
	return decayWindowDays * (1 - e.cfg.MinConfidence/c.Confidence) / effectiveRate, nil
}

func (e *DecayEngine) logDecay(ctx context.Context, id string, prev, next float64, reason string) {
	err := e.audit.AppendDecay(ctx, &domain.DecayLogEntry{
		ClauseID:           id,
		PreviousConfidence: prev,
		NewConfidence:      next,
		Reason:             reason,
	})
	if err != nil {
		e.logger.Warn("failed to append decay log", zap.String("clause_id", id), zap.Error(err))
	}
}
