package main

import (
	"context"
	"fmt"
	"strings"

	"memochain/internal/config"
	"memochain/internal/domain"
	"memochain/internal/infra/db"
	httpinfra "memochain/internal/infra/http"
	"memochain/internal/infra/ledger"
	"memochain/internal/infra/ledgerfile"
	"memochain/internal/infra/metrics"
	"memochain/internal/infra/policyopa"
	"memochain/internal/infra/roster"
	"memochain/internal/usecase"

	"github.com/sirupsen/logrus"
)

const (
	modeMemory   = "memory"
	modeFile     = "file"
	modePostgres = "postgres"
)

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	store, err := db.NewStore(cfg, log)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()
	if store.DB != nil {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
	}

	backend, mode, err := openBackend(cfg, store)
	if err != nil {
		return err
	}
	admission, err := openAdmission(ctx, cfg, log)
	if err != nil {
		return err
	}

	chainStore, err := ledger.Open(ctx, ledgerOptions(cfg, backend, admission, log, m))
	if err != nil {
		if backend != nil {
			_ = backend.Close()
		}
		return fmt.Errorf("open ledger: %w", err)
	}
	defer chainStore.Close()

	students, err := openRoster(ctx, cfg, store, log)
	if err != nil {
		return err
	}
	matchMode, err := usecase.ParseMatchMode(cfg.MatchMode)
	if err != nil {
		return err
	}

	reconciler := &usecase.Reconciler{
		Ledger: chainStore,
		Roster: students,
		Mode:   matchMode,
	}
	if m != nil {
		reconciler.Metrics = m
	}
	stats, _ := chainStore.Stats(ctx)
	log.WithFields(logrus.Fields{
		"mode":         mode,
		"blocks":       stats.TotalBlocks,
		"transactions": stats.TotalTransactions,
		"difficulty":   chainStore.Difficulty(),
		"match_mode":   matchMode,
	}).Info("ledger ready")
	if repo, ok := backend.(*db.BlockRepository); ok {
		checkProjection(ctx, repo, stats, log)
	}

	srv := httpinfra.NewServer(cfg, httpinfra.ServerDeps{
		Record:     &usecase.RecordMemo{Ledger: chainStore},
		Reconciler: reconciler,
		Students:   &usecase.StudentLookup{Roster: students, Reconciler: reconciler},
		Stats:      &usecase.LedgerStats{Ledger: chainStore},
		Export:     &usecase.ExportSnapshot{Ledger: chainStore, Roster: students},
		Ledger:     chainStore,
		StoreMode:  mode,
		Logger:     log,
		Metrics:    m,
	})
	return srv.Run(ctx)
}

// openBackend prefers an explicit ledger file, then postgres, then memory.
func openBackend(cfg config.Config, store *db.Store) (ledger.Backend, string, error) {
	if cfg.LedgerFile != "" {
		file, err := ledgerfile.Open(cfg.LedgerFile)
		if err != nil {
			return nil, "", fmt.Errorf("open ledger file: %w", err)
		}
		return file, modeFile, nil
	}
	if store != nil && store.DB != nil {
		return db.NewBlockRepository(store.DB), modePostgres, nil
	}
	return nil, modeMemory, nil
}

func openAdmission(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (domain.AdmissionPolicy, error) {
	path := strings.TrimSpace(cfg.AdmissionPolicyPath)
	var (
		engine *policyopa.Engine
		err    error
	)
	switch {
	case strings.EqualFold(path, "none"):
		log.Warn("admission policy disabled")
		return nil, nil
	case path == "":
		engine, err = policyopa.NewDefaultEngine(ctx)
	default:
		engine, err = policyopa.NewEngineFromPath(ctx, path)
	}
	if err != nil {
		return nil, fmt.Errorf("load admission policy: %w", err)
	}
	log.WithField("policy_hash", engine.PolicyHash()).Info("admission policy loaded")
	return engine, nil
}

// openRoster loads the CSV roster. With a database the CSV is upserted and
// reads go to postgres; otherwise the roster lives in memory.
func openRoster(ctx context.Context, cfg config.Config, store *db.Store, log logrus.FieldLogger) (usecase.Roster, error) {
	var entries []domain.RosterEntry
	if cfg.RosterCSV != "" {
		loaded, err := roster.LoadFile(cfg.RosterCSV)
		if err != nil {
			return nil, fmt.Errorf("load roster: %w", err)
		}
		entries = loaded
		log.WithFields(logrus.Fields{"path": cfg.RosterCSV, "entries": len(entries)}).Info("roster loaded")
	}
	if store != nil && store.DB != nil {
		repo := db.NewRosterRepository(store.DB)
		if len(entries) > 0 {
			if err := repo.Upsert(ctx, entries); err != nil {
				return nil, fmt.Errorf("sync roster: %w", err)
			}
		}
		return repo, nil
	}
	return roster.New(entries), nil
}

// ledgerOptions maps config onto the ledger, clamping the validation floor to
// the mining difficulty.
func ledgerOptions(cfg config.Config, backend ledger.Backend, admission domain.AdmissionPolicy, log logrus.FieldLogger, m *metrics.Metrics) ledger.Options {
	minDifficulty := cfg.LedgerMinDifficulty
	if minDifficulty > cfg.LedgerDifficulty {
		log.WithFields(logrus.Fields{
			"min_difficulty": minDifficulty,
			"difficulty":     cfg.LedgerDifficulty,
		}).Warn("minimum difficulty above mining difficulty; clamping")
		minDifficulty = cfg.LedgerDifficulty
	}
	return ledger.Options{
		Difficulty:        cfg.LedgerDifficulty,
		MinDifficulty:     minDifficulty,
		MiningTimeout:     cfg.LedgerMiningTimeout,
		Backend:           backend,
		ExpectedItems:     uint64(cfg.BloomExpectedItems),
		FalsePositiveRate: cfg.BloomFalsePositiveRate,
		Admission:         admission,
		RequiredFields:    cfg.RequiredFields,
		Logger:            log,
		Metrics:           m,
	}
}

// checkProjection compares the postgres tables with the restored ledger. A
// drift is logged; the ledger itself stays authoritative.
func checkProjection(ctx context.Context, repo *db.BlockRepository, stats domain.LedgerStats, log logrus.FieldLogger) bool {
	blocks, txs, err := repo.Summary(ctx)
	if err != nil {
		log.WithError(err).Warn("ledger projection summary failed")
		return false
	}
	if blocks != stats.TotalBlocks || txs != stats.TotalTransactions {
		log.WithFields(logrus.Fields{
			"db_blocks":       blocks,
			"db_transactions": txs,
			"blocks":          stats.TotalBlocks,
			"transactions":    stats.TotalTransactions,
		}).Warn("ledger projection out of step with ledger")
		return false
	}
	return true
}
