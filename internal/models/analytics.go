package models

// TrendPoint is one dated sample of a tracked metric.
type TrendPoint struct {
	Date          string  `json:"date"`
	Value         float64 `json:"value"`
	Change        float64 `json:"change"`
	PreviousValue float64 `json:"previous_value"`
}

// PageStat describes traffic to one page.
type PageStat struct {
	Page       string  `json:"page"`
	Views      int     `json:"views"`
	AvgTime    float64 `json:"avg_time"`
	BounceRate float64 `json:"bounce_rate"`
}

// FunnelStep is one stage of a conversion funnel.
type FunnelStep struct {
	Step           string  `json:"step"`
	Users          int     `json:"users"`
	ConversionRate float64 `json:"conversion_rate"`
	DropoffRate    float64 `json:"dropoff_rate"`
}

// Metrics is a snapshot of the analytics simulator.
type Metrics struct {
	DailyActiveUsers       []TrendPoint `json:"daily_active_users"`
	AverageSessionDuration []TrendPoint `json:"average_session_duration"`
	BounceRate             []TrendPoint `json:"bounce_rate"`
	PagesPerSession        []TrendPoint `json:"pages_per_session"`
	ConversionRate         []TrendPoint `json:"conversion_rate"`
	Revenue                []TrendPoint `json:"revenue"`
	PageLoadTime           []TrendPoint `json:"page_load_time"`
	ErrorRate              []TrendPoint `json:"error_rate"`
	Uptime                 []TrendPoint `json:"uptime"`
	TopPages               []PageStat   `json:"top_pages"`
}
