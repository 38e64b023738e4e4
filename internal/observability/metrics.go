// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the relay core.
type Metrics struct {
	// Vault metrics
	MintsTotal      *prometheus.CounterVec
	RedeemsTotal    *prometheus.CounterVec
	ReserveBalance  *prometheus.GaugeVec
	MintedSupply    *prometheus.GaugeVec
	MarketsHalted   prometheus.Gauge
	OperationErrors *prometheus.CounterVec

	// Auction metrics
	SettlementsTotal *prometheus.CounterVec
	RoutingFailures  prometheus.Counter
	CurrentPrice     *prometheus.GaugeVec
	LotAmount        *prometheus.GaugeVec
	PendingAccrual   *prometheus.GaugeVec

	// Registry metrics
	MarketsCreated prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "relay"
	}

	return &Metrics{
		MintsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "mints_total",
			Help:      "Total number of successful mints by market",
		}, []string{"market"}),
		RedeemsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "redeems_total",
			Help:      "Total number of successful redeems by market",
		}, []string{"market"}),
		ReserveBalance: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "reserve_balance",
			Help:      "Current reserve balance in base asset units",
		}, []string{"market"}),
		MintedSupply: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "minted_supply",
			Help:      "Current market token supply",
		}, []string{"market"}),
		MarketsHalted: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "markets_halted",
			Help:      "Number of markets halted on invariant breach",
		}),
		OperationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "core",
			Name:      "operation_errors_total",
			Help:      "Total number of failed operations by op and error kind",
		}, []string{"op", "kind"}),

		SettlementsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feeflow",
			Name:      "settlements_total",
			Help:      "Total number of successful auction settlements by market",
		}, []string{"market"}),
		RoutingFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feeflow",
			Name:      "routing_failures_total",
			Help:      "Total number of rolled-back purchases due to routing failures",
		}),
		CurrentPrice: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feeflow",
			Name:      "current_price",
			Help:      "Auction price at last quote or settlement",
		}, []string{"market"}),
		LotAmount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feeflow",
			Name:      "lot_amount",
			Help:      "Current epoch lot in base asset units",
		}, []string{"market"}),
		PendingAccrual: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feeflow",
			Name:      "pending_accrual",
			Help:      "Fees buffered for the next epoch in base asset units",
		}, []string{"market"}),

		MarketsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "markets_created_total",
			Help:      "Total number of markets created",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordMint increments the mint counter for a market.
func RecordMint(market string) {
	DefaultMetrics.MintsTotal.WithLabelValues(market).Inc()
}

// RecordRedeem increments the redeem counter for a market.
func RecordRedeem(market string) {
	DefaultMetrics.RedeemsTotal.WithLabelValues(market).Inc()
}

// RecordSettlement increments the settlement counter for a market.
func RecordSettlement(market string) {
	DefaultMetrics.SettlementsTotal.WithLabelValues(market).Inc()
}

// RecordRoutingFailure increments the routing failure counter.
func RecordRoutingFailure() {
	DefaultMetrics.RoutingFailures.Inc()
}

// RecordOperationError records a failed operation by kind.
func RecordOperationError(op, kind string) {
	DefaultMetrics.OperationErrors.WithLabelValues(op, kind).Inc()
}

// RecordMarketCreated increments the market creation counter.
func RecordMarketCreated() {
	DefaultMetrics.MarketsCreated.Inc()
}

// UpdateVaultGauges updates the per-market vault gauges.
func UpdateVaultGauges(market string, reserve, supply float64) {
	DefaultMetrics.ReserveBalance.WithLabelValues(market).Set(reserve)
	DefaultMetrics.MintedSupply.WithLabelValues(market).Set(supply)
}

// UpdateAuctionGauges updates the per-market auction gauges.
func UpdateAuctionGauges(market string, price, lot, pending float64) {
	DefaultMetrics.CurrentPrice.WithLabelValues(market).Set(price)
	DefaultMetrics.LotAmount.WithLabelValues(market).Set(lot)
	DefaultMetrics.PendingAccrual.WithLabelValues(market).Set(pending)
}

// RecordHalt increments the halted markets gauge.
func RecordHalt() {
	DefaultMetrics.MarketsHalted.Inc()
}
