package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	dispatchesSent      prometheus.Counter
	dispatchesAccepted  prometheus.Counter
	dispatchesRejected  prometheus.Counter
	dispatchesCompleted prometheus.Counter
	reassignments       prometheus.Counter
	sendFailures        prometheus.Counter
)

func newCollectors() (prometheus.Counter, prometheus.Counter, prometheus.Counter, prometheus.Counter, prometheus.Counter, prometheus.Counter) {
	sent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatches_sent_total",
		Help: "Number of dispatches delivered to a driver",
	})
	accepted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatches_accepted_total",
		Help: "Number of dispatches accepted by the driver",
	})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatches_rejected_total",
		Help: "Number of dispatches rejected by the driver",
	})
	completed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatches_completed_total",
		Help: "Number of dispatches delivered to the customer",
	})
	reassigned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_reassignments_total",
		Help: "Number of dispatches created after a rejection",
	})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_send_failures_total",
		Help: "Number of driver notifications that failed and rolled back a reservation",
	})
	return sent, accepted, rejected, completed, reassigned, failures
}

func init() {
	dispatchesSent, dispatchesAccepted, dispatchesRejected, dispatchesCompleted, reassignments, sendFailures = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(dispatchesSent, dispatchesAccepted, dispatchesRejected, dispatchesCompleted, reassignments, sendFailures)
}
