// Command progression is the operator CLI of the progression engine.
//
// Usage:
//
//	progression serve
//	progression migrate [-down | -status]
//	progression resync [-student id]
//	progression rebuild -student id
//	progression check -student id [-level n]
//	progression summary -students a,b,c [-fresh]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/practica-musical/progression-hub/config"
	"github.com/practica-musical/progression-hub/internal/application/command"
	"github.com/practica-musical/progression-hub/internal/application/query"
	"github.com/practica-musical/progression-hub/internal/domain/entity"
	"github.com/practica-musical/progression-hub/internal/domain/promotion"
	"github.com/practica-musical/progression-hub/internal/infrastructure/messaging"
	"github.com/practica-musical/progression-hub/internal/infrastructure/persistence/guarded"
	"github.com/practica-musical/progression-hub/internal/infrastructure/persistence/memory"
	"github.com/practica-musical/progression-hub/internal/infrastructure/persistence/postgres"
	"github.com/practica-musical/progression-hub/internal/infrastructure/persistence/redis"
	"github.com/practica-musical/progression-hub/internal/infrastructure/persistence/repository"
	httpserver "github.com/practica-musical/progression-hub/internal/interface/http"
	"github.com/practica-musical/progression-hub/pkg/logger"
	"github.com/practica-musical/progression-hub/pkg/timeutil"
)

var errUsage = errors.New("usage: progression <serve|migrate|resync|rebuild|check|summary> [flags]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "progression: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := timeutil.LoadZone(cfg.App.Timezone); err != nil {
		return err
	}
	log := logger.New(logger.Options{Output: os.Stderr, Level: cfg.LogLevel()})

	a, err := newApp(ctx, cfg, log, args[0] == "migrate")
	if err != nil {
		return err
	}
	defer a.close()

	switch args[0] {
	case "serve":
		return a.serve(ctx, cfg)
	case "migrate":
		return a.migrate(ctx, args[1:], out)
	case "resync":
		return a.resync(ctx, args[1:], out)
	case "rebuild":
		return a.rebuild(ctx, args[1:], out)
	case "check":
		return a.check(ctx, args[1:], out)
	case "summary":
		return a.summary(ctx, args[1:], out)
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRING
// ══════════════════════════════════════════════════════════════════════════════

type app struct {
	log  *logger.Logger
	conn *postgres.Connection
	bus  *messaging.InMemoryEventBus
	rc   *redis.Cache

	resyncH   *command.SyncPracticeXPHandler
	rebuildH  *command.RebuildTotalsHandler
	summaries *query.StudentSummariesHandler
	api       httpserver.Dependencies
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger, needDB bool) (*app, error) {
	a := &app{log: log}

	var store entity.Store
	if cfg.Database.URL != "" {
		log.Info("connecting to database")
		conn, err := postgres.NewConnection(ctx, cfg.Postgres())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.conn = conn
		store = postgres.NewEntityStore(conn)
	} else {
		if needDB {
			return nil, errors.New("DATABASE_URL is required")
		}
		log.Warn("DATABASE_URL not set, using an empty in-memory store")
		store = memory.New()
	}
	store = guarded.New(store, cfg.Guard(), log)

	var cache query.SummaryCache
	if !cfg.Redis.Disabled {
		rc, err := redis.NewCache(cfg.RedisCache())
		if err != nil {
			log.Warn("failed to connect to Redis, summary cache disabled", logger.Err(err))
		} else {
			a.rc = rc
			cache = redis.NewSummaryCache(rc, cfg.Aggregation.SummaryTTL)
		}
	}

	busCfg := messaging.DefaultConfig()
	busCfg.Logger = log
	a.bus = messaging.NewInMemoryEventBus(busCfg)

	ledger := repository.NewLedgerRepository(store)
	blocks := repository.NewBlockRepository(store)
	levels := repository.NewLevelRepository(store)
	statuses := repository.NewStatusRepository(store)
	students := repository.NewStudentRepository(store)
	items := repository.NewBackpackRepository(store)
	checker := promotion.NewChecker(ledger, levels, statuses)

	cmdOpts := command.Options{
		Logger:  log,
		Retrier: command.ConflictRetrier(log, cfg.Store.ConflictAttempts),
	}
	addXP := command.NewAddXPHandler(ledger, a.bus, cmdOpts)
	toggle := command.NewToggleCriterionHandler(levels, statuses, a.bus, cmdOpts)
	a.resyncH = command.NewSyncPracticeXPHandler(blocks, ledger, addXP, a.bus, cmdOpts)
	a.rebuildH = command.NewRebuildTotalsHandler(addXP, cmdOpts)

	qOpts := query.Options{Logger: log, Windows: cfg.Windows()}
	practice := query.NewPracticeXPHandler(blocks, qOpts)
	evaluation := query.NewEvaluationXPHandler(repository.NewQualitativeRepository(store), qOpts)
	manual := query.NewManualXPHandler(ledger, qOpts)
	a.summaries = query.NewStudentSummariesHandler(
		ledger,
		students,
		checker,
		practice,
		evaluation,
		manual,
		cache,
		cfg.Summaries(),
		qOpts,
	)
	if err := a.summaries.InvalidateOn(a.bus); err != nil {
		return nil, fmt.Errorf("failed to subscribe summary cache: %w", err)
	}

	a.api = httpserver.Dependencies{
		AddXP:           addXP,
		CompleteBlock:   command.NewCompletePracticeBlockHandler(blocks, addXP, cmdOpts),
		PromoteLevel:    command.NewPromoteLevelHandler(students, checker, a.bus, cmdOpts),
		ToggleCriterion: toggle,
		CommitReview:    command.NewCommitProfessorReviewHandler(levels, addXP, toggle, checker, cmdOpts),
		RecordSession:   command.NewRecordPracticeSessionHandler(items, a.bus, cfg.Backpack(), cmdOpts),

		PracticeXP:       practice,
		EvaluationXP:     evaluation,
		ManualXP:         manual,
		CanPromote:       query.NewCanPromoteHandler(students, checker),
		PreviewPromotion: query.NewPreviewPromotionHandler(students, checker, qOpts),
		Backpack:         query.NewBackpackViewHandler(items, cfg.Backpack(), qOpts),
		LevelDiff:        query.NewLevelDiffHandler(levels),
		Summaries:        a.summaries,

		Logger: log,
	}
	if a.conn != nil {
		a.api.HealthChecker = a.conn
	}
	return a, nil
}

func (a *app) close() {
	_ = a.bus.Close()
	if a.rc != nil {
		_ = a.rc.Close()
	}
	if a.conn != nil {
		a.conn.Close()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBCOMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// serve runs the REST API until ctx is cancelled.
func (a *app) serve(ctx context.Context, cfg *config.Config) error {
	srv := httpserver.NewServer(cfg.Server(), a.api)
	errCh := srv.StartAsync()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	uptime := srv.Uptime()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	a.log.Info("HTTP server stopped", logger.String("uptime", uptime.String()))
	return nil
}

func (a *app) migrate(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	down := fs.Bool("down", false, "roll back the latest applied migration")
	status := fs.Bool("status", false, "list migrations and whether they are applied")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *down && *status {
		return errors.New("migrate: -down and -status are exclusive")
	}

	m := postgres.NewMigrator(a.conn)
	switch {
	case *status:
		migs, err := m.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to read migration status: %w", err)
		}
		for _, mig := range migs {
			state := "pending"
			if mig.IsApplied {
				state = "applied " + mig.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(out, "%03d %-28s %s\n", mig.Version, mig.Name, state)
		}
		return nil
	case *down:
		if err := m.Rollback(ctx); err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		fmt.Fprintln(out, "rolled back 1 migration")
		return nil
	}

	n, err := m.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	fmt.Fprintf(out, "applied %d migration(s)\n", n)
	return nil
}

func (a *app) resync(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("resync", flag.ContinueOnError)
	student := fs.String("student", "", "only resync this student")
	actor := fs.String("actor", "cli", "actor recorded on corrections")
	if err := fs.Parse(args); err != nil {
		return err
	}

	start := time.Now()
	res, err := a.resyncH.Handle(ctx, command.SyncPracticeXPCommand{StudentID: *student, ActorID: *actor})
	if err != nil {
		return err
	}
	a.log.Info("practice XP resynced",
		logger.Int("students", len(res.Students)),
		logger.Int("corrections", res.Corrected()),
		logger.Latency(time.Since(start)),
	)
	// Per-student events only cover students that were corrected.
	if *student == "" {
		if err := a.summaries.InvalidateAll(ctx); err != nil {
			a.log.Warn("failed to drop cached summaries", logger.Err(err))
		}
	}
	return writeJSON(out, res.Students)
}

func (a *app) rebuild(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("rebuild", flag.ContinueOnError)
	student := fs.String("student", "", "student to rebuild (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := a.rebuildH.Handle(ctx, command.RebuildTotalsCommand{StudentID: *student})
	if err != nil {
		return err
	}
	return writeJSON(out, res)
}

func (a *app) check(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	student := fs.String("student", "", "student to check (required)")
	level := fs.Int("level", 0, "level to check, defaults to the current one")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := a.api.CanPromote.Handle(ctx, query.CanPromoteQuery{StudentID: *student, Level: *level})
	if err != nil {
		return err
	}
	return writeJSON(out, res)
}

func (a *app) summary(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	ids := fs.String("students", "", "comma-separated student IDs (required)")
	fresh := fs.Bool("fresh", false, "bypass the cache")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var list []string
	for _, id := range strings.Split(*ids, ",") {
		if id = strings.TrimSpace(id); id != "" {
			list = append(list, id)
		}
	}
	if len(list) == 0 {
		return errors.New("summary: -students is required")
	}

	res, err := a.api.Summaries.Handle(ctx, query.StudentSummariesQuery{StudentIDs: list, SkipCache: *fresh})
	if err != nil {
		return err
	}
	return writeJSON(out, res)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
