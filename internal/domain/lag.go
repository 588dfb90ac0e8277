package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// LagPolicy describes when a factor observation takes effect.
//
// An observation shift ("1", "-2") moves a return onto the observed date N
// observations later in the same series. A period shift ("1M") moves it
// forward N calendar months; on a daily calendar the return lands on the
// first date on or after that point and every other day carries zero.
type LagPolicy struct {
	Observations int
	Months       int
}

// ParseLagPolicy parses "", "N" or "NM". The empty string means no lag.
func ParseLagPolicy(s string) (LagPolicy, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return LagPolicy{}, nil
	}
	if strings.HasSuffix(s, "M") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "M"))
		if err != nil || n < 0 {
			return LagPolicy{}, fmt.Errorf("invalid period lag %q", s)
		}
		return LagPolicy{Months: n}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return LagPolicy{}, fmt.Errorf("invalid observation lag %q", s)
	}
	return LagPolicy{Observations: n}, nil
}

// IsPeriod reports whether the policy shifts by calendar months.
func (p LagPolicy) IsPeriod() bool {
	return p.Months > 0
}

func (p LagPolicy) String() string {
	if p.IsPeriod() {
		return strconv.Itoa(p.Months) + "M"
	}
	return strconv.Itoa(p.Observations)
}
