// Command audit-scores compares every item's stored score with its vote ledger
// and optionally rewrites drifted scores.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/emilythestrangee/reddit-clone/voteledger/internal/config"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/database"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/logger"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/models"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/votes"
)

func main() {
	fix := flag.Bool("fix", false, "rewrite drifted scores to baseline + ledger sum")
	batch := flag.Int("batch", 500, "items fetched per page")
	only := flag.String("item", "", "audit a single item id")
	timeout := flag.Duration("timeout", 30*time.Minute, "overall deadline")
	flag.Parse()
	if *batch < 1 {
		log.Fatalf("-batch must be at least 1, got %d", *batch)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	appLog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLog.Sync()

	log.Printf("Connecting to database (%s)...", cfg.DBDriver)
	db, err := database.Open(cfg, appLog)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	engine := votes.NewEngine(votes.Deps{
		Runner: database.NewTxRunner(db.GetDB(), cfg.TxIsolation),
		Log:    appLog,
	}, votes.Config{
		MaxAttempts:    cfg.VoteMaxAttempts,
		InitialBackoff: cfg.VoteRetryInitialBackoff,
		MaxBackoff:     cfg.VoteRetryMaxBackoff,
	})
	a := &auditor{engine: engine, fix: *fix}

	if *only != "" {
		id, err := uuid.Parse(*only)
		if err != nil {
			log.Fatalf("Invalid item id %q: %v", *only, err)
		}
		if err := a.check(ctx, id); err != nil {
			log.Fatalf("Failed to audit %s: %v", id, err)
		}
	} else if err := a.all(ctx, database.NewItemStore(db.GetDB()), *batch); err != nil {
		log.Fatalf("Audit aborted after %d items: %v", a.checked, err)
	}

	if a.fix {
		log.Printf("✓ Checked %d items, repaired %d", a.checked, a.drifted)
		return
	}
	log.Printf("✓ Checked %d items, %d drifted", a.checked, a.drifted)
	if a.drifted > 0 {
		os.Exit(1)
	}
}

type pager interface {
	IDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

type auditor struct {
	engine  *votes.Engine
	fix     bool
	checked int
	drifted int
}

func (a *auditor) all(ctx context.Context, items pager, batch int) error {
	if batch < 1 {
		return fmt.Errorf("batch must be at least 1, got %d", batch)
	}
	after := uuid.Nil
	for {
		ids, err := items.IDs(ctx, after, batch)
		if err != nil {
			return fmt.Errorf("list items: %w", err)
		}
		for _, id := range ids {
			if err := a.check(ctx, id); err != nil {
				return fmt.Errorf("item %s: %w", id, err)
			}
		}
		if len(ids) < batch {
			return nil
		}
		after = ids[len(ids)-1]
	}
}

func (a *auditor) check(ctx context.Context, id uuid.UUID) error {
	var (
		audit *models.ScoreAudit
		err   error
	)
	if a.fix {
		audit, err = a.engine.Reconcile(ctx, id)
	} else {
		audit, err = a.engine.Audit(ctx, id)
	}
	if err != nil {
		return err
	}
	a.checked++
	if audit.Drift != 0 {
		a.drifted++
		log.Printf("Drift on %s: score=%d baseline=%d ledger=%d drift=%+d",
			id, audit.Score, audit.Baseline, audit.LedgerSum, audit.Drift)
	}
	return nil
}
