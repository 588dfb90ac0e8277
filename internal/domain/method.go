// Package domain provides the core types shared by every pipeline stage.
package domain

import (
	"fmt"
	"strings"
)

// Mode selects between one-factor-at-a-time and joint regression.
type Mode string

const (
	// ModeSingle regresses a security on one factor at a time (total exposure)
	ModeSingle Mode = "SINGLE"
	// ModeMulti regresses a security on all usable factors jointly (partial exposure)
	ModeMulti Mode = "MULTI"
)

// Transform selects which factor return series feeds a regression.
type Transform string

const (
	// TransformRaw uses factor returns as normalized
	TransformRaw Transform = "RAW"
	// TransformZScore uses the rolling z-scored factor returns
	TransformZScore Transform = "ZSCORE"
)

// Method is the {SINGLE, MULTI} x {RAW, ZSCORE} tag carried by every derived row.
// Consumers must pin one when querying; variants are never blended.
type Method string

const (
	MethodSingleRaw    Method = "SINGLE_RAW"
	MethodSingleZScore Method = "SINGLE_ZSCORE"
	MethodMultiRaw     Method = "MULTI_RAW"
	MethodMultiZScore  Method = "MULTI_ZSCORE"
)

// AllMethods lists every method in the order they are computed and stored.
var AllMethods = []Method{
	MethodSingleRaw,
	MethodSingleZScore,
	MethodMultiRaw,
	MethodMultiZScore,
}

// NewMethod combines a mode and a transform.
func NewMethod(mode Mode, transform Transform) Method {
	return Method(string(mode) + "_" + string(transform))
}

// ParseMethod validates a method name (case-insensitive).
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllMethods {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown method %q", s)
}

// Mode returns the regression mode of the method.
func (m Method) Mode() Mode {
	if strings.HasPrefix(string(m), string(ModeMulti)) {
		return ModeMulti
	}
	return ModeSingle
}

// Transform returns the factor series transform of the method.
func (m Method) Transform() Transform {
	if strings.HasSuffix(string(m), string(TransformZScore)) {
		return TransformZScore
	}
	return TransformRaw
}

func (m Method) String() string {
	return string(m)
}
