package series

import (
	"context"
	"strconv"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/threading"

	"coinchart-api/internal/cache"
	"coinchart-api/internal/model"
	"coinchart-api/internal/store"
)

const (
	defaultSyncInterval   = 24 * time.Hour
	defaultSyncStaleAfter = 24 * time.Hour
	defaultSyncGroupSize  = 5
	defaultSyncGroupDelay = time.Second
	fullSyncTimeout       = 30 * time.Minute
)

// AutoSyncParams collects the dependencies and tuning of an AutoSync.
// Zero tuning fields keep the defaults.
type AutoSyncParams struct {
	Store      store.Store
	Tokens     model.TokensModel
	Reconciler *Reconciler
	// Interval is the minimum spacing between full reconciliations.
	Interval time.Duration
	// StaleAfter is how old an in-flight marker must be before it is
	// treated as orphaned by a crashed run and cleared.
	StaleAfter time.Duration
	// GroupSize and GroupDelay pace the per-asset work so a full sweep
	// does not monopolise the upstream quota or the database.
	GroupSize  int
	GroupDelay time.Duration
}

// AutoSync runs a full-catalog reconciliation at most once per interval.
// State lives in the shared cache so the check is O(1) per request and
// coordinates across process instances.
type AutoSync struct {
	store      store.Store
	tokens     model.TokensModel
	reconciler *Reconciler
	interval   time.Duration
	staleAfter time.Duration
	groupSize  int
	groupDelay time.Duration

	now      func() time.Time
	dispatch func(fn func())
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewAutoSync(p AutoSyncParams) *AutoSync {
	a := &AutoSync{
		store:      p.Store,
		tokens:     p.Tokens,
		reconciler: p.Reconciler,
		interval:   p.Interval,
		staleAfter: p.StaleAfter,
		groupSize:  p.GroupSize,
		groupDelay: p.GroupDelay,
		now:        time.Now,
		dispatch:   func(fn func()) { threading.GoSafe(fn) },
		sleep:      sleepCtx,
	}
	if a.interval <= 0 {
		a.interval = defaultSyncInterval
	}
	if a.staleAfter <= 0 {
		a.staleAfter = defaultSyncStaleAfter
	}
	if a.groupSize <= 0 {
		a.groupSize = defaultSyncGroupSize
	}
	if a.groupDelay < 0 {
		a.groupDelay = defaultSyncGroupDelay
	}
	return a
}

// MaybeRun checks whether a full reconciliation is due and, if so,
// dispatches one in the background. It never blocks the caller on the
// sync itself and reports whether a run was triggered.
func (a *AutoSync) MaybeRun(ctx context.Context) bool {
	if !a.due(ctx) {
		return false
	}
	a.dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), fullSyncTimeout)
		defer cancel()
		if err := a.RunFullSync(ctx); err != nil {
			logx.Errorf("autosync: full sync: %v", err)
		}
	})
	return true
}

// RunIfDue runs a full reconciliation synchronously when one is due.
// It reports whether a run happened.
func (a *AutoSync) RunIfDue(ctx context.Context) (bool, error) {
	if !a.due(ctx) {
		return false, nil
	}
	return true, a.RunFullSync(ctx)
}

// due reports whether the last completed run is old enough. Errors on
// the check degrade to "not due": a broken cache must not stop serving.
func (a *AutoSync) due(ctx context.Context) bool {
	raw, ok, err := a.store.GetString(ctx, cache.SyncLastRunKey())
	if err != nil {
		logx.WithContext(ctx).Errorf("autosync: read last_run: %v", err)
		return false
	}
	if !ok {
		return true
	}
	lastMs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return true
	}
	return a.now().Sub(time.UnixMilli(lastMs)) >= a.interval
}

// RunFullSync reconciles every catalog asset that has an upstream id.
// Concurrent runs are excluded via an in-flight marker; a marker older
// than the stale threshold is assumed to belong to a crashed run and is
// cleared. Per-asset failures are logged and skipped so one bad asset
// cannot abort the sweep.
func (a *AutoSync) RunFullSync(ctx context.Context) error {
	now := a.now()
	raw, running, err := a.store.GetString(ctx, cache.SyncRunningKey())
	if err != nil {
		return err
	}
	if running {
		startMs, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr == nil && now.Sub(time.UnixMilli(startMs)) < a.staleAfter {
			logx.WithContext(ctx).Infof("autosync: already running since %s, skipping", time.UnixMilli(startMs).Format(time.RFC3339))
			return nil
		}
		logx.WithContext(ctx).Errorf("autosync: clearing orphaned run marker from %q", raw)
		if err := a.store.Delete(ctx, cache.SyncRunningKey()); err != nil {
			return err
		}
	}
	won, err := a.store.SetStringNX(ctx, cache.SyncRunningKey(), formatMillis(now), 0)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	defer func() {
		// Completion, success or not, stamps last_run and frees the
		// marker; a failed sweep retries a full interval later instead
		// of hammering the upstream.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.store.SetString(cleanupCtx, cache.SyncLastRunKey(), formatMillis(a.now()), 0); err != nil {
			logx.Errorf("autosync: stamp last_run: %v", err)
		}
		if err := a.store.Delete(cleanupCtx, cache.SyncRunningKey()); err != nil {
			logx.Errorf("autosync: clear run marker: %v", err)
		}
	}()

	tokens, err := a.tokens.ListWithCmcId(ctx)
	if err != nil {
		return err
	}
	logx.WithContext(ctx).Infof("autosync: starting full sync for %d assets", len(tokens))

	var synced, failed int
	for start := 0; start < len(tokens); start += a.groupSize {
		if err := ctx.Err(); err != nil {
			logx.WithContext(ctx).Errorf("autosync: aborted after %d assets: %v", synced, err)
			return err
		}
		end := start + a.groupSize
		if end > len(tokens) {
			end = len(tokens)
		}
		for _, token := range tokens[start:end] {
			res, err := a.reconciler.Reconcile(ctx, token.Id, token.CmcId.String)
			if err != nil {
				failed++
				logx.WithContext(ctx).Errorf("autosync: reconcile asset=%s cmc=%s: %v", token.Id, token.CmcId.String, err)
				continue
			}
			synced++
			if res.Pushed > 0 || res.Pulled > 0 {
				logx.WithContext(ctx).Infof("autosync: asset=%s pushed=%d pulled=%d series=%d", token.Id, res.Pushed, res.Pulled, res.Series)
			}
		}
		if end < len(tokens) && a.groupDelay > 0 {
			if err := a.sleep(ctx, a.groupDelay); err != nil {
				return err
			}
		}
	}
	logx.WithContext(ctx).Infof("autosync: full sync done synced=%d failed=%d", synced, failed)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
