package domain

import (
	"fmt"
	"time"
)

// DataGapError marks a missing observation. It is recoverable: the date or
// pair is excluded and shows up as reduced coverage.
type DataGapError struct {
	Entity string // "factor" or "security"
	Code   string
	Date   time.Time
}

func (e *DataGapError) Error() string {
	if e.Date.IsZero() {
		return fmt.Sprintf("data gap: %s %s has no observations", e.Entity, e.Code)
	}
	return fmt.Sprintf("data gap: %s %s has no observation on %s", e.Entity, e.Code, FormatDate(e.Date))
}

// InsufficientObservationsError marks an estimate that could not be formed.
// The affected value is undefined, never zero.
type InsufficientObservationsError struct {
	Stage string
	Key   string
	Have  int
	Need  int
}

func (e *InsufficientObservationsError) Error() string {
	return fmt.Sprintf("insufficient observations for %s %s: have %d, need %d", e.Stage, e.Key, e.Have, e.Need)
}

// ConfigurationError is fatal: a run must abort before writing anything.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// InconsistentAsOfError reports beta and portfolio dates further apart than
// the staleness bound. Values stay usable; the gap is carried on output rows.
type InconsistentAsOfError struct {
	PortfolioDate time.Time
	BetaAsOf      time.Time
	Days          int
	Bound         int
}

func (e *InconsistentAsOfError) Error() string {
	return fmt.Sprintf("beta as-of %s is %d days before portfolio date %s (bound %d)",
		FormatDate(e.BetaAsOf), e.Days, FormatDate(e.PortfolioDate), e.Bound)
}
