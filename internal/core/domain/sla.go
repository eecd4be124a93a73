package domain

import (
	"math"
	"time"
)

// RiskStatus is the display state of an SLA timer, and the aggregated risk
// label of a ticket.
type RiskStatus string

const (
	RiskOnTrack  RiskStatus = "on_track"
	RiskAtRisk   RiskStatus = "at_risk"
	RiskCritical RiskStatus = "critical"
	RiskBreached RiskStatus = "breached"
	RiskPaused   RiskStatus = "paused"
)

// riskPrecedence orders statuses from least to most severe.
var riskPrecedence = map[RiskStatus]int{
	RiskOnTrack:  1,
	RiskPaused:   2,
	RiskAtRisk:   3,
	RiskCritical: 4,
	RiskBreached: 5,
}

// Severity returns the precedence rank of s, zero for unknown statuses.
func (s RiskStatus) Severity() int {
	return riskPrecedence[s]
}

// SLAMetric names what an SLA policy measures.
type SLAMetric string

const (
	MetricFirstResponse SLAMetric = "first_response"
	MetricResolution    SLAMetric = "resolution"
)

// SLATimer is the state of one SLA policy applied to a ticket.
type SLATimer struct {
	Policy            string     `json:"policy,omitempty"`
	Metric            SLAMetric  `json:"metric,omitempty"`
	TargetSeconds     int64      `json:"targetSeconds,omitempty"`
	DisplayStatus     RiskStatus `json:"displayStatus"`
	PercentageElapsed float64    `json:"percentageElapsed"`
}

// EvaluateRisk reduces a set of SLA timers to the single worst status using
// breached > critical > at_risk > paused > on_track. It reports false when
// there is nothing to evaluate.
func EvaluateRisk(timers []SLATimer) (RiskStatus, bool) {
	var worst RiskStatus
	for _, t := range timers {
		if t.DisplayStatus.Severity() > worst.Severity() {
			worst = t.DisplayStatus
		}
	}
	return worst, worst != ""
}

// SLAPolicy is a service-level target applied to every ticket. Targets are
// per priority; a priority without a target is not covered by the policy.
type SLAPolicy struct {
	Name        string
	Metric      SLAMetric
	Targets     map[TicketPriority]time.Duration
	AtRiskPct   float64
	CriticalPct float64
}

// Evaluate computes the timer of this policy for a ticket at now. It reports
// false when the policy does not cover the ticket's priority.
func (p SLAPolicy) Evaluate(t *Ticket, now time.Time) (SLATimer, bool) {
	target, ok := p.Targets[t.Priority]
	if !ok || target <= 0 {
		return SLATimer{}, false
	}

	var metAt *time.Time
	switch p.Metric {
	case MetricFirstResponse:
		metAt = t.FirstResponseAt
	case MetricResolution:
		metAt = t.ResolvedAt
		if metAt == nil {
			metAt = t.ClosedAt
		}
	}

	end := now
	if metAt != nil {
		end = *metAt
	}
	elapsed := end.Sub(t.CreatedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	pct := math.Round(float64(elapsed)/float64(target)*1000) / 10

	timer := SLATimer{
		Policy:            p.Name,
		Metric:            p.Metric,
		TargetSeconds:     int64(target / time.Second),
		PercentageElapsed: pct,
	}

	switch {
	case pct >= 100:
		timer.DisplayStatus = RiskBreached
	case metAt != nil:
		timer.DisplayStatus = RiskOnTrack
	case t.Status == StatusPending:
		timer.DisplayStatus = RiskPaused
	case p.CriticalPct > 0 && pct >= p.CriticalPct:
		timer.DisplayStatus = RiskCritical
	case p.AtRiskPct > 0 && pct >= p.AtRiskPct:
		timer.DisplayStatus = RiskAtRisk
	default:
		timer.DisplayStatus = RiskOnTrack
	}
	return timer, true
}
