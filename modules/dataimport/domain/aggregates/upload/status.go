package upload

import (
	"fmt"

	"github.com/iota-uz/payroll-reconciler/pkg/serrors"
)

// Status is the import state of a standardized file. States only move forward.
type Status string

const (
	StatusUploaded                  Status = "uploaded"
	StatusRespondingAgencyUnmatched Status = "responding_agency_unmatched"
	StatusParentEmployerUnmatched   Status = "parent_employer_unmatched"
	StatusChildEmployerUnmatched    Status = "child_employer_unmatched"
	StatusSalaryUnvalidated         Status = "salary_unvalidated"
	StatusComplete                  Status = "complete"
)

var statuses = []Status{
	StatusUploaded,
	StatusRespondingAgencyUnmatched,
	StatusParentEmployerUnmatched,
	StatusChildEmployerUnmatched,
	StatusSalaryUnvalidated,
	StatusComplete,
}

// Transition names the only legal ways to change a status.
type Transition string

const (
	CopyToDatabase             Transition = "copy_to_database"
	SelectUnseenParentEmployer Transition = "select_unseen_parent_employer"
	SelectUnseenChildEmployer  Transition = "select_unseen_child_employer"
	SelectInvalidSalary        Transition = "select_invalid_salary"
	Finish                     Transition = "finish"
)

type edge struct {
	from Status
	to   Status
}

var transitions = map[Transition]edge{
	CopyToDatabase:             {StatusUploaded, StatusRespondingAgencyUnmatched},
	SelectUnseenParentEmployer: {StatusRespondingAgencyUnmatched, StatusParentEmployerUnmatched},
	SelectUnseenChildEmployer:  {StatusParentEmployerUnmatched, StatusChildEmployerUnmatched},
	SelectInvalidSalary:        {StatusChildEmployerUnmatched, StatusSalaryUnvalidated},
	Finish:                     {StatusSalaryUnvalidated, StatusComplete},
}

var (
	ErrIllegalTransition = serrors.NewError("IMPORT_ILLEGAL_TRANSITION", "illegal status transition")
	ErrUnknownTransition = serrors.NewError("IMPORT_UNKNOWN_TRANSITION", "unknown transition")
	ErrUnknownStatus     = serrors.NewError("IMPORT_UNKNOWN_STATUS", "unknown status")
)

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusComplete
}

// Fire returns the target of t when s is its source.
func (s Status) Fire(t Transition) (Status, error) {
	e, ok := transitions[t]
	if !ok {
		return s, fmt.Errorf("%w: %q", ErrUnknownTransition, t)
	}
	if e.from != s {
		return s, fmt.Errorf("%w: %s requires %s, file is %s", ErrIllegalTransition, t, e.from, s)
	}
	return e.to, nil
}

func ParseTransition(s string) (Transition, error) {
	t := Transition(s)
	if _, ok := transitions[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTransition, s)
	}
	return t, nil
}

func (t Transition) Source() Status {
	return transitions[t].from
}

func (t Transition) Target() Status {
	return transitions[t].to
}
