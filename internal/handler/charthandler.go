package handler

import (
	"errors"
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"coinchart-api/internal/logic"
	"coinchart-api/internal/series"
	"coinchart-api/internal/svc"
	"coinchart-api/internal/types"
)

// chartCacheControl lets CDNs and browsers reuse chart payloads briefly;
// the server-side staleness policy is the real freshness authority.
const chartCacheControl = "public, max-age=300"

func ChartHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.ChartRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}

		l := logic.NewChartLogic(r.Context(), svcCtx)
		resp, err := l.Chart(&req)
		if err != nil {
			writeChartError(w, r, err)
			return
		}
		w.Header().Set("Cache-Control", chartCacheControl)
		httpx.OkJsonCtx(r.Context(), w, resp)
	}
}

func writeChartError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, logic.ErrBadRequest) || errors.Is(err, series.ErrInvalidAsset) {
		status = http.StatusBadRequest
	}
	httpx.WriteJsonCtx(r.Context(), w, status, map[string]string{"error": err.Error()})
}
