package logic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/threading"

	"coinchart-api/internal/chart"
	"coinchart-api/internal/model"
	"coinchart-api/internal/svc"
	"coinchart-api/internal/types"
)

// ErrBadRequest marks client errors: unknown asset, range or interval.
// Handlers map it to a 400 response.
var ErrBadRequest = errors.New("bad request")

const reconcileTimeout = 5 * time.Minute

type ChartLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewChartLogic(ctx context.Context, svcCtx *svc.ServiceContext) *ChartLogic {
	return &ChartLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *ChartLogic) Chart(req *types.ChartRequest) ([]types.ChartPoint, error) {
	timeRange, err := chart.ParseTimeRange(req.TimeRange)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	interval, err := chart.ParseInterval(req.Interval)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	// Piggybacked maintenance: a cheap due check per request, work
	// dispatched off the request path.
	if l.svcCtx.Config.Sync.Enabled {
		l.svcCtx.AutoSync.MaybeRun(l.ctx)
	}
	if req.Sync {
		l.dispatchReconcile(req.Id)
	}

	var points []chart.PricePoint
	if req.UseDb {
		points, err = l.svcCtx.Fetcher.FromDurable(l.ctx, req.Id, timeRange, interval)
		if err == nil && len(points) == 0 {
			// Nothing persisted for this window yet; serve the regular
			// cache/upstream path instead of an empty chart.
			points, err = l.svcCtx.Fetcher.GetSeries(l.ctx, req.Id, timeRange, interval, req.Refresh)
		}
	} else {
		points, err = l.svcCtx.Fetcher.GetSeries(l.ctx, req.Id, timeRange, interval, req.Refresh)
	}
	if err != nil {
		return nil, err
	}

	resp := make([]types.ChartPoint, 0, len(points))
	for _, p := range points {
		resp = append(resp, types.ChartPoint{
			Timestamp:        p.TimestampMs,
			Price:            p.Price,
			Volume:           p.Volume,
			MarketCap:        p.MarketCap,
			PercentChange24h: p.PercentChange24h,
		})
	}
	return resp, nil
}

// dispatchReconcile runs a per-asset reconciliation in the background so
// the explicit sync flag never delays the chart response.
func (l *ChartLogic) dispatchReconcile(cmcID string) {
	svcCtx := l.svcCtx
	threading.GoSafe(func() {
		ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		defer cancel()
		token, err := svcCtx.TokensModel.FindOneByCmcId(ctx, cmcID)
		if err != nil {
			if !errors.Is(err, model.ErrNotFound) {
				logx.Errorf("chart: sync token lookup %s: %v", cmcID, err)
			}
			return
		}
		res, err := svcCtx.Reconciler.Reconcile(ctx, token.Id, cmcID)
		if err != nil {
			logx.Errorf("chart: sync reconcile asset=%s: %v", token.Id, err)
			return
		}
		logx.Infof("chart: sync asset=%s pushed=%d pulled=%d series=%d", token.Id, res.Pushed, res.Pulled, res.Series)
	})
}
