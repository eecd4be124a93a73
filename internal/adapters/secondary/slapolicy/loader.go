// Package slapolicy loads SLA policies from YAML.
package slapolicy

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lorrc/ticket-collab/internal/core/domain"
	"github.com/lorrc/ticket-collab/internal/core/ports"
	"gopkg.in/yaml.v3"
)

// fileFormat is the policy file layout:
//
//	policies:
//	  - name: first-response
//	    metric: first_response
//	    atRiskPercent: 75
//	    criticalPercent: 90
//	    targets:
//	      urgent: 30m
//	      high: 1h
type fileFormat struct {
	Policies []policyEntry `yaml:"policies"`
}

type policyEntry struct {
	Name            string            `yaml:"name"`
	Metric          string            `yaml:"metric"`
	AtRiskPercent   float64           `yaml:"atRiskPercent"`
	CriticalPercent float64           `yaml:"criticalPercent"`
	Targets         map[string]string `yaml:"targets"`
}

// Source is a fixed set of policies.
type Source struct {
	policies []domain.SLAPolicy
}

var _ ports.SLAPolicySource = (*Source)(nil)

// NewSource wraps already-built policies.
func NewSource(policies []domain.SLAPolicy) *Source {
	return &Source{policies: policies}
}

// Policies returns a copy of the loaded policies.
func (s *Source) Policies() []domain.SLAPolicy {
	out := make([]domain.SLAPolicy, len(s.policies))
	copy(out, s.policies)
	return out
}

// Load reads a policy file. An empty path returns the defaults.
func Load(path string) (*Source, error) {
	if path == "" {
		return NewSource(DefaultPolicies()), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sla policy file: %w", err)
	}
	policies, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewSource(policies), nil
}

// Parse decodes and validates a policy document.
func Parse(data []byte) ([]domain.SLAPolicy, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc fileFormat
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode sla policies: %w", err)
	}
	if len(doc.Policies) == 0 {
		return nil, errors.New("no sla policies defined")
	}

	seen := make(map[string]struct{}, len(doc.Policies))
	policies := make([]domain.SLAPolicy, 0, len(doc.Policies))
	for i, entry := range doc.Policies {
		p, err := entry.toPolicy()
		if err != nil {
			return nil, fmt.Errorf("policy %d: %w", i, err)
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("policy %d: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = struct{}{}
		policies = append(policies, p)
	}
	return policies, nil
}

func (e policyEntry) toPolicy() (domain.SLAPolicy, error) {
	if e.Name == "" {
		return domain.SLAPolicy{}, errors.New("name is required")
	}

	metric := domain.SLAMetric(e.Metric)
	if metric != domain.MetricFirstResponse && metric != domain.MetricResolution {
		return domain.SLAPolicy{}, fmt.Errorf("unknown metric %q", e.Metric)
	}

	if e.AtRiskPercent < 0 || e.CriticalPercent < 0 ||
		(e.AtRiskPercent > 0 && e.CriticalPercent > 0 && e.AtRiskPercent > e.CriticalPercent) {
		return domain.SLAPolicy{}, fmt.Errorf("thresholds out of order: atRisk %.1f, critical %.1f",
			e.AtRiskPercent, e.CriticalPercent)
	}

	if len(e.Targets) == 0 {
		return domain.SLAPolicy{}, errors.New("at least one target is required")
	}
	targets := make(map[domain.TicketPriority]time.Duration, len(e.Targets))
	for name, raw := range e.Targets {
		priority := domain.TicketPriority(name)
		if !priority.IsValid() {
			return domain.SLAPolicy{}, fmt.Errorf("unknown priority %q", name)
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return domain.SLAPolicy{}, fmt.Errorf("target %s: %w", name, err)
		}
		if d <= 0 {
			return domain.SLAPolicy{}, fmt.Errorf("target %s must be positive", name)
		}
		targets[priority] = d
	}

	return domain.SLAPolicy{
		Name:        e.Name,
		Metric:      metric,
		Targets:     targets,
		AtRiskPct:   e.AtRiskPercent,
		CriticalPct: e.CriticalPercent,
	}, nil
}

// DefaultPolicies is used when no policy file is configured.
func DefaultPolicies() []domain.SLAPolicy {
	return []domain.SLAPolicy{
		{
			Name:   "first-response",
			Metric: domain.MetricFirstResponse,
			Targets: map[domain.TicketPriority]time.Duration{
				domain.PriorityUrgent: 30 * time.Minute,
				domain.PriorityHigh:   time.Hour,
				domain.PriorityMedium: 4 * time.Hour,
				domain.PriorityLow:    8 * time.Hour,
			},
			AtRiskPct:   75,
			CriticalPct: 90,
		},
		{
			Name:   "resolution",
			Metric: domain.MetricResolution,
			Targets: map[domain.TicketPriority]time.Duration{
				domain.PriorityUrgent: 4 * time.Hour,
				domain.PriorityHigh:   8 * time.Hour,
				domain.PriorityMedium: 24 * time.Hour,
				domain.PriorityLow:    72 * time.Hour,
			},
			AtRiskPct:   75,
			CriticalPct: 90,
		},
	}
}
