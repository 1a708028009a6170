// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var CasesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spanner_cases_created_total",
	Help: "Moderation cases committed to the ledger",
}, []string{"type"})

var CaseRollbacks = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spanner_case_rollbacks_total",
	Help: "Cases removed again because the moderation action failed",
}, []string{"kind"})

var PollsExpired = promauto.NewCounter(prometheus.CounterOpts{
	Name: "spanner_polls_expired_total",
	Help: "Polls closed by the expiry sweeper",
})

var CommandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spanner_commands_total",
	Help: "Commands the bot executed",
}, []string{"command", "outcome"})
