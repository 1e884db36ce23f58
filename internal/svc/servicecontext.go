package svc

import (
	"log"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"coinchart-api/internal/cache"
	"coinchart-api/internal/chart"
	"coinchart-api/internal/config"
	"coinchart-api/internal/model"
	"coinchart-api/internal/series"
	"coinchart-api/internal/store"
	marketpkg "coinchart-api/pkg/market"
	_ "coinchart-api/pkg/market/cmc"
)

type ServiceContext struct {
	Config config.Config

	Store  store.Store
	Policy *chart.Policy
	TTL    cache.TTLSet

	MarketConfig    *marketpkg.Config
	MarketProviders map[string]marketpkg.QuoteProvider
	DefaultMarket   marketpkg.QuoteProvider

	DBConn           sqlx.SqlConn
	TokensModel      model.TokensModel
	PricePointsModel model.PricePointsModel

	Fetcher    *series.Fetcher
	Writer     *series.Writer
	Reconciler *series.Reconciler
	AutoSync   *series.AutoSync
}

func NewServiceContext(c config.Config) *ServiceContext {
	svc := &ServiceContext{
		Config: c,
		Policy: chart.NewPolicy(c.RefreshOverrides()),
		TTL:    cache.NewTTLSet(c.TTL.Series, c.TTL.Busy, c.TTL.Fallback),
	}

	// Market providers come from the hydrated section; the main config
	// only names the file. Configs without a Market section fall back to
	// etc/market.yaml at the project root.
	marketCfg := c.Market.Value
	if marketCfg == nil {
		marketCfg = config.MustLoadMarket()
	}
	providers, err := marketCfg.BuildProviders()
	if err != nil {
		log.Fatalf("failed to build market providers: %v", err)
	}
	svc.MarketConfig = marketCfg
	svc.MarketProviders = providers
	if marketCfg.Default != "" {
		svc.DefaultMarket = providers[marketCfg.Default]
	}
	if svc.DefaultMarket == nil {
		log.Fatalf("no default market provider configured")
	}

	// The in-memory store keeps single-instance deployments and tests
	// working without Redis; markers then only coordinate within the
	// process.
	if c.Redis.Host != "" {
		svc.Store = store.NewRedisStore(redis.MustNewRedis(c.Redis))
	} else {
		svc.Store = store.NewMemoryStore()
	}

	if c.Postgres.DSN == "" {
		log.Fatalf("config: postgres.dsn is required")
	}
	conn := sqlx.NewSqlConn("pgx", c.Postgres.DSN)
	svc.DBConn = conn
	svc.TokensModel = model.NewTokensModel(conn)
	svc.PricePointsModel = model.NewPricePointsModel(conn)

	svc.Writer = series.NewWriter(svc.PricePointsModel)
	svc.Fetcher = series.NewFetcher(series.FetcherParams{
		Store:           svc.Store,
		Tokens:          svc.TokensModel,
		Points:          svc.PricePointsModel,
		Provider:        svc.DefaultMarket,
		Writer:          svc.Writer,
		Policy:          svc.Policy,
		TTL:             svc.TTL,
		UpstreamTimeout: c.UpstreamTimeout(),
	})
	svc.Reconciler = series.NewReconciler(svc.Store, svc.PricePointsModel, svc.Writer, svc.Policy, svc.TTL)
	svc.AutoSync = series.NewAutoSync(series.AutoSyncParams{
		Store:      svc.Store,
		Tokens:     svc.TokensModel,
		Reconciler: svc.Reconciler,
		Interval:   c.SyncInterval(),
		StaleAfter: c.SyncStaleAfter(),
		GroupSize:  c.Sync.GroupSize,
		GroupDelay: c.SyncGroupDelay(),
	})
	return svc
}
