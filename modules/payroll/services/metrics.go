package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iota-uz/payroll-reconciler/modules/payroll/domain/classification"
)

var (
	payrollWriteConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payroll",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Total number of canonical write conflicts broken down by kind.",
	}, []string{"kind"})

	payrollUnitsClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payroll",
		Subsystem: "classification",
		Name:      "units_total",
		Help:      "Units run through the taxonomy cascade broken down by the rule that matched.",
	}, []string{"rule"})

	payrollDepartmentsClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payroll",
		Subsystem: "classification",
		Name:      "departments_total",
		Help:      "Departments run through universe tagging broken down by universe.",
	}, []string{"universe"})

	payrollPopulationMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payroll",
		Subsystem: "classification",
		Name:      "population_total",
		Help:      "Population enrichment attempts broken down by result.",
	}, []string{"result"})

	payrollEntitiesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payroll",
		Subsystem: "canonical",
		Name:      "created_total",
		Help:      "Canonical agencies, units and departments created from review decisions.",
	}, []string{"kind"})
)

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	payrollWriteConflicts.WithLabelValues(kind).Inc()
}

func recordUnitClassified(rule classification.Rule) {
	payrollUnitsClassified.WithLabelValues(string(rule)).Inc()
}

func recordDepartmentClassified(u classification.Universe) {
	label := string(u)
	if u == classification.UniverseNone {
		label = "none"
	}
	payrollDepartmentsClassified.WithLabelValues(label).Inc()
}

func recordPopulation(matched bool) {
	result := "miss"
	if matched {
		result = "hit"
	}
	payrollPopulationMatches.WithLabelValues(result).Inc()
}

func recordCreated(kind string) {
	payrollEntitiesCreated.WithLabelValues(kind).Inc()
}
