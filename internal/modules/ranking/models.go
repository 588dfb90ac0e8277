// Package ranking derives top and bottom security slices per factor, by
// sensitivity and by fit quality.
package ranking

import (
	"fmt"
	"strings"
	"time"

	"github.com/aristath/factorrisk/internal/domain"
)

// Axis is what a ranking orders by
type Axis string

const (
	AxisSensitivity Axis = "SENSITIVITY" // beta
	AxisFit         Axis = "FIT"         // R²
)

// Side is the end of the ordering a slice is taken from
type Side string

const (
	SideTop    Side = "TOP"
	SideBottom Side = "BOTTOM"
)

// ParseAxis parses an axis name case-insensitively
func ParseAxis(s string) (Axis, error) {
	switch Axis(strings.ToUpper(strings.TrimSpace(s))) {
	case AxisSensitivity:
		return AxisSensitivity, nil
	case AxisFit:
		return AxisFit, nil
	}
	return "", fmt.Errorf("unknown ranking axis %q", s)
}

// Entry is one ranked security
type Entry struct {
	AsOfDate     time.Time     `json:"as_of_date"`
	FactorCode   string        `json:"factor_code"`
	Method       domain.Method `json:"method"`
	Axis         Axis          `json:"axis"`
	Side         Side          `json:"side"`
	Rank         int           `json:"rank"` // 1-based
	SecurityCode string        `json:"security_code"`
	Beta         float64       `json:"beta"`
	R2           *float64      `json:"r2"`
}

// Slices groups the entries of one (factor, method) by axis and side
type Slices struct {
	FactorCode string  `json:"factor_code"`
	Top        []Entry `json:"top"`
	Bottom     []Entry `json:"bottom"`
}
