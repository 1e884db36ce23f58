// Code scaffolded by goctl. Safe to edit.
// goctl 1.9.2

package types

type ChartRequest struct {
	Id        string `path:"id"`
	TimeRange string `form:"timeRange,optional"`
	Interval  string `form:"interval,optional"`
	Refresh   bool   `form:"refresh,optional"`
	Sync      bool   `form:"sync,optional"`
	UseDb     bool   `form:"useDb,optional"`
}

type ChartPoint struct {
	Timestamp        int64   `json:"timestamp"`
	Price            float64 `json:"price"`
	Volume           float64 `json:"volume"`
	MarketCap        float64 `json:"market_cap"`
	PercentChange24h float64 `json:"percent_change_24h"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
