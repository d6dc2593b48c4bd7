package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Trading metrics
	tradesOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papertrade_trades_opened_total",
			Help: "Total number of simulated positions opened",
		},
		[]string{"symbol"},
	)

	exitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papertrade_exits_total",
			Help: "Total number of exit executions by trigger",
		},
		[]string{"symbol", "trigger"},
	)

	realizedPnL = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "papertrade_realized_pnl",
			Help:    "Distribution of realized PnL per closed slice",
			Buckets: []float64{-500, -100, -50, -10, 0, 10, 50, 100, 500},
		},
		[]string{"symbol"},
	)

	// Market data metrics
	currentPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "papertrade_current_price",
			Help: "Latest streamed price per symbol",
		},
		[]string{"symbol"},
	)

	// Risk metrics
	entryRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papertrade_entry_rejections_total",
			Help: "Total number of rejected entry attempts by reason",
		},
		[]string{"reason"},
	)

	accountEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "papertrade_account_equity",
			Help: "Current simulated account equity",
		},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papertrade_errors_total",
			Help: "Total number of errors by category",
		},
		[]string{"category"},
	)
)

func init() {
	prometheus.MustRegister(tradesOpenedTotal)
	prometheus.MustRegister(exitsTotal)
	prometheus.MustRegister(realizedPnL)
	prometheus.MustRegister(currentPrice)
	prometheus.MustRegister(entryRejectionsTotal)
	prometheus.MustRegister(accountEquity)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler serves the Prometheus scrape endpoint.
type MetricsHandler struct{}

func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordTradeOpened records a new simulated position.
func RecordTradeOpened(symbol string) {
	tradesOpenedTotal.WithLabelValues(symbol).Inc()
}

// RecordExit records an exit execution and its realized PnL.
func RecordExit(symbol, trigger string, pnl float64) {
	exitsTotal.WithLabelValues(symbol, trigger).Inc()
	realizedPnL.WithLabelValues(symbol).Observe(pnl)
}

// UpdatePrice updates the latest price gauge.
func UpdatePrice(symbol string, price float64) {
	currentPrice.WithLabelValues(symbol).Set(price)
}

// RecordEntryRejection records a rejected entry attempt.
func RecordEntryRejection(reason string) {
	entryRejectionsTotal.WithLabelValues(reason).Inc()
}

// UpdateEquity updates the account equity gauge.
func UpdateEquity(equity float64) {
	accountEquity.Set(equity)
}

// RecordError records an error by category.
func RecordError(category string) {
	errorsTotal.WithLabelValues(category).Inc()
}
