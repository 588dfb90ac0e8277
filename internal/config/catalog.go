package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aristath/factorrisk/internal/domain"
)

//go:embed factors.yaml
var defaultCatalogYAML []byte

// Return transforms applied to raw factor levels
const (
	RetLog      = "log_return"
	RetDiffPP   = "diff_pp"
	RetDuration = "duration_return"
)

// Observation frequencies
const (
	FrequencyDaily   = "D"
	FrequencyMonthly = "M"
)

// FactorSpec describes one factor: where its levels come from and how they
// become returns.
type FactorSpec struct {
	Code              string   `yaml:"code" json:"code"`
	Name              string   `yaml:"name" json:"name"`
	Source            string   `yaml:"source" json:"source"`
	Series            string   `yaml:"series" json:"series"`
	Frequency         string   `yaml:"frequency" json:"frequency"`
	RetType           string   `yaml:"ret_type" json:"ret_type"`
	Duration          float64  `yaml:"duration,omitempty" json:"duration,omitempty"`
	LagPolicy         string   `yaml:"lag_policy,omitempty" json:"lag_policy"`
	ReferenceSecurity string   `yaml:"reference_security,omitempty" json:"reference_security,omitempty"`
	Tags              []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Description       string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// Lag returns the parsed lag policy. Catalogs are validated on load, so an
// error here means the spec was built by hand.
func (f FactorSpec) Lag() (domain.LagPolicy, error) {
	return domain.ParseLagPolicy(f.LagPolicy)
}

// Catalog is the ordered factor list. Order is significant: it fixes the
// column order of every regression and covariance matrix.
type Catalog struct {
	Factors []FactorSpec `yaml:"factors"`
}

// LoadCatalog reads a YAML catalog from path, or the built-in catalog when
// path is empty. DURATION_<CODE> env variables override durations.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalogYAML
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read factor catalog %s: %w", path, err)
		}
		data = raw
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog YAML
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, &domain.ConfigurationError{Field: "factor_catalog", Reason: err.Error()}
	}

	for i := range c.Factors {
		f := &c.Factors[i]
		f.Code = strings.TrimSpace(f.Code)
		f.Frequency = strings.ToUpper(strings.TrimSpace(f.Frequency))
		if f.Frequency == "" {
			f.Frequency = FrequencyDaily
		}
		if d, ok := getEnvAsFloat("DURATION_" + f.Code); ok {
			f.Duration = d
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks codes, transforms, durations and lag policies
func (c *Catalog) Validate() error {
	if len(c.Factors) == 0 {
		return &domain.ConfigurationError{Field: "factor_catalog", Reason: "no factors defined"}
	}

	seen := make(map[string]bool, len(c.Factors))
	for _, f := range c.Factors {
		field := "factor_catalog." + f.Code
		if f.Code == "" {
			return &domain.ConfigurationError{Field: "factor_catalog", Reason: "factor without code"}
		}
		if seen[f.Code] {
			return &domain.ConfigurationError{Field: field, Reason: "duplicate factor code"}
		}
		seen[f.Code] = true

		switch f.RetType {
		case RetLog, RetDiffPP:
		case RetDuration:
			if f.Duration <= 0 {
				return &domain.ConfigurationError{Field: field, Reason: "duration_return requires a positive duration"}
			}
		default:
			return &domain.ConfigurationError{Field: field, Reason: fmt.Sprintf("unknown ret_type %q", f.RetType)}
		}

		if f.Frequency != FrequencyDaily && f.Frequency != FrequencyMonthly {
			return &domain.ConfigurationError{Field: field, Reason: fmt.Sprintf("unknown frequency %q", f.Frequency)}
		}
		if _, err := f.Lag(); err != nil {
			return &domain.ConfigurationError{Field: field, Reason: err.Error()}
		}
	}
	return nil
}

// Codes returns factor codes in catalog order
func (c *Catalog) Codes() []string {
	codes := make([]string, len(c.Factors))
	for i, f := range c.Factors {
		codes[i] = f.Code
	}
	return codes
}

// Get returns the spec for code
func (c *Catalog) Get(code string) (FactorSpec, bool) {
	for _, f := range c.Factors {
		if f.Code == code {
			return f, true
		}
	}
	return FactorSpec{}, false
}
