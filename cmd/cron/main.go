package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"coinchart-api/internal/cache"
	"coinchart-api/internal/chart"
	"coinchart-api/internal/cli"
	"coinchart-api/internal/config"
	"coinchart-api/internal/model"
	"coinchart-api/internal/series"
	"coinchart-api/internal/store"
	"coinchart-api/pkg/journal"
	_ "coinchart-api/pkg/market/cmc"
)

const (
	checkInterval   = 15 * time.Minute // how often the daemon re-checks whether a sweep is due
	shutdownTimeout = 10 * time.Second // grace period for shutdown
)

// The sync daemon runs full cache/database reconciliation on its own
// schedule, independent of API traffic. Deployments with steady traffic
// can rely on the per-request check alone; this binary covers the quiet
// ones.
func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("[main] Starting sync daemon...")

	configPath := "etc/coinchart.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("[main] Failed to load config %s: %v", configPath, err)
	}
	if cfg.Postgres.DSN == "" {
		log.Fatalf("[main] config: postgres.dsn is required")
	}

	log.Printf("[main] Configuration loaded:")
	for _, line := range cli.ConfigSummaryLines(cfg) {
		log.Printf("  - %s", line)
	}

	var st store.Store
	if cfg.Redis.Host != "" {
		st = store.NewRedisStore(redis.MustNewRedis(cfg.Redis))
		log.Printf("  - Store: redis (%s)", cfg.Redis.Host)
	} else {
		st = store.NewMemoryStore()
		log.Printf("  - Store: memory")
	}

	conn := sqlx.NewSqlConn("pgx", cfg.Postgres.DSN)
	pointsModel := model.NewPricePointsModel(conn)
	tokensModel := model.NewTokensModel(conn)

	policy := chart.NewPolicy(cfg.RefreshOverrides())
	ttl := cache.NewTTLSet(cfg.TTL.Series, cfg.TTL.Busy, cfg.TTL.Fallback)
	writer := series.NewWriter(pointsModel)
	reconciler := series.NewReconciler(st, pointsModel, writer, policy, ttl)
	autoSync := series.NewAutoSync(series.AutoSyncParams{
		Store:      st,
		Tokens:     tokensModel,
		Reconciler: reconciler,
		Interval:   cfg.SyncInterval(),
		StaleAfter: cfg.SyncStaleAfter(),
		GroupSize:  cfg.Sync.GroupSize,
		GroupDelay: cfg.SyncGroupDelay(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	jw := journal.NewWriter(os.Getenv("SYNC_JOURNAL_DIR"))
	go func() {
		defer wg.Done()
		runSyncLoop(ctx, autoSync, jw)
	}()

	log.Println("[main] Sync daemon started. Press Ctrl+C to stop.")

	<-ctx.Done()
	log.Println("[main] Shutdown signal received, stopping tasks...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[main] All tasks stopped cleanly")
	case <-shutdownCtx.Done():
		log.Println("[main] Shutdown timeout exceeded, forcing exit")
	}

	log.Println("[main] Sync daemon stopped")
}

// runSyncLoop triggers a full reconciliation whenever one is due. The
// due check is cheap; the run itself skips out if another instance
// holds the run marker.
func runSyncLoop(ctx context.Context, autoSync *series.AutoSync, jw *journal.Writer) {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	// Run once immediately on startup
	syncIfDue(ctx, autoSync, jw)

	for {
		select {
		case <-ctx.Done():
			log.Println("[sync] Stopping sync loop")
			return
		case <-ticker.C:
			syncIfDue(ctx, autoSync, jw)
		}
	}
}

func syncIfDue(ctx context.Context, autoSync *series.AutoSync, jw *journal.Writer) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	ran, err := autoSync.RunIfDue(ctx)
	if !ran && err == nil {
		return
	}
	rec := &journal.SyncRecord{
		DurationMs: time.Since(start).Milliseconds(),
		Success:    err == nil,
	}
	if err != nil {
		rec.ErrorMessage = err.Error()
	}
	if _, jerr := jw.WriteSync(rec); jerr != nil {
		log.Printf("[sync] [WARN] journal write failed: %v", jerr)
	}
	if err != nil {
		log.Printf("[sync] [ERROR] %v, took %dms", err, rec.DurationMs)
		return
	}
	log.Printf("[sync] [OK] took %dms", rec.DurationMs)
}
