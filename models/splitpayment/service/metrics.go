package service

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type paymentMetrics struct {
	splitTransitions *prometheus.CounterVec
	casConflicts     *prometheus.CounterVec
	chargeAttempts   *prometheus.CounterVec
	refundCalls      *prometheus.CounterVec
	remindersSent    prometheus.Counter
	viewCache        *prometheus.CounterVec
}

var (
	metricsInstance *paymentMetrics
	metricsOnce     sync.Once
	defaultRegistry = prometheus.DefaultRegisterer
)

func newPaymentMetrics() *paymentMetrics {
	metricsOnce.Do(func() {
		metricsInstance = &paymentMetrics{
			splitTransitions: promauto.With(defaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "split_payment_transitions_total",
				Help: "Split payment status transitions by source and target status",
			}, []string{"from", "to"}),
			casConflicts: promauto.With(defaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "split_payment_cas_conflicts_total",
				Help: "Conditional status writes that lost to a concurrent writer",
			}, []string{"operation"}),
			chargeAttempts: promauto.With(defaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "individual_payment_charge_attempts_total",
				Help: "Charge attempts and processor callbacks by outcome",
			}, []string{"outcome"}),
			refundCalls: promauto.With(defaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "refund_processor_calls_total",
				Help: "Processor refund calls by outcome",
			}, []string{"outcome"}),
			remindersSent: promauto.With(defaultRegistry).NewCounter(prometheus.CounterOpts{
				Name: "individual_payment_reminders_total",
				Help: "Payment reminders accepted for delivery",
			}),
			viewCache: promauto.With(defaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "split_payment_view_cache_total",
				Help: "Split payment view cache lookups by result",
			}, []string{"result"}),
		}
	})
	return metricsInstance
}
