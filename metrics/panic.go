// Package metrics has prometheus metric variables/functions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricPanic = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "smtpcore_panic_total",
		Help: "Number of unhandled panics, by package.",
	},
	[]string{
		"pkg",
	},
)

// Panic is the label value for the package that recovered from a panic.
type Panic string

const (
	Smtpclient Panic = "smtpclient"
)

func PanicInc(name Panic) {
	metricPanic.WithLabelValues(string(name)).Inc()
}
