package settings

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/domain"
	"github.com/rs/zerolog"
)

// Service validates setting updates before they reach the repository
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a new settings service
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "settings").Logger(),
	}
}

// GetAll returns every recognized setting with its effective value,
// followed by stored lag policy overrides. Secrets are masked.
func (s *Service) GetAll() ([]Setting, error) {
	stored, err := s.repo.GetAll()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(SettingDefaults))
	for k := range SettingDefaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]Setting, 0, len(keys))
	for _, k := range keys {
		setting := Setting{
			Key:         k,
			Value:       SettingDefaults[k],
			Default:     SettingDefaults[k],
			Description: SettingDescriptions[k],
		}
		if v, ok := stored[k]; ok {
			setting.Value = v
			setting.Overridden = true
		}
		if secretKeys[k] {
			setting.Value = maskSecret(fmt.Sprint(setting.Value))
			setting.Default = nil
		}
		result = append(result, setting)
	}

	lagKeys := make([]string, 0)
	for k := range stored {
		if strings.HasPrefix(k, LagPolicyPrefix) {
			lagKeys = append(lagKeys, k)
		}
	}
	sort.Strings(lagKeys)
	for _, k := range lagKeys {
		result = append(result, Setting{
			Key:         k,
			Value:       stored[k],
			Description: "Lag policy override for " + strings.TrimPrefix(k, LagPolicyPrefix),
			Overridden:  true,
		})
	}

	return result, nil
}

// Set validates and stores a setting. Numeric settings accept JSON numbers or
// numeric strings. The full analytics configuration is re-validated with the
// new value applied so an update can never leave the pipeline unrunnable.
func (s *Service) Set(key string, value interface{}) error {
	if !IsKnownKey(key) {
		return &domain.ConfigurationError{Field: key, Reason: "unknown setting"}
	}

	str, err := s.normalize(key, value)
	if err != nil {
		return err
	}

	if err := s.validateAgainstCurrent(key, str); err != nil {
		return err
	}

	if err := s.repo.Set(key, str, nil); err != nil {
		return err
	}

	s.log.Info().Str("key", key).Msg("Setting updated")
	return nil
}

// SetLagPolicy stores a lag override for a factor
func (s *Service) SetLagPolicy(factorCode string, policy domain.LagPolicy) error {
	return s.Set(LagPolicyKey(factorCode), policy.String())
}

// LagPolicies returns stored lag overrides keyed by factor code
func (s *Service) LagPolicies() (map[string]domain.LagPolicy, error) {
	raw, err := s.repo.GetByPrefix(LagPolicyPrefix)
	if err != nil {
		return nil, err
	}

	result := make(map[string]domain.LagPolicy, len(raw))
	for code, v := range raw {
		p, err := domain.ParseLagPolicy(v)
		if err != nil {
			return nil, &domain.ConfigurationError{Field: LagPolicyKey(code), Reason: err.Error()}
		}
		result[code] = p
	}
	return result, nil
}

// Repository exposes the underlying repository for config overlays
func (s *Service) Repository() *Repository {
	return s.repo
}

func (s *Service) normalize(key string, value interface{}) (string, error) {
	if strings.HasPrefix(key, LagPolicyPrefix) {
		str := strings.TrimSpace(fmt.Sprint(value))
		if n, ok := value.(float64); ok {
			str = strconv.Itoa(int(n))
		}
		if _, err := domain.ParseLagPolicy(str); err != nil {
			return "", &domain.ConfigurationError{Field: key, Reason: err.Error()}
		}
		return str, nil
	}

	switch SettingDefaults[key].(type) {
	case float64:
		var n float64
		switch v := value.(type) {
		case float64:
			n = v
		case int:
			n = float64(v)
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return "", &domain.ConfigurationError{Field: key, Reason: fmt.Sprintf("not a number: %q", v)}
			}
			n = parsed
		default:
			return "", &domain.ConfigurationError{Field: key, Reason: fmt.Sprintf("unsupported value type %T", value)}
		}
		if n != float64(int(n)) {
			return "", &domain.ConfigurationError{Field: key, Reason: "must be an integer"}
		}
		return strconv.Itoa(int(n)), nil

	case bool:
		switch v := value.(type) {
		case bool:
			return strconv.FormatBool(v), nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return "", &domain.ConfigurationError{Field: key, Reason: fmt.Sprintf("not a boolean: %q", v)}
			}
			return strconv.FormatBool(b), nil
		}
		return "", &domain.ConfigurationError{Field: key, Reason: fmt.Sprintf("unsupported value type %T", value)}

	default:
		str, ok := value.(string)
		if !ok {
			return "", &domain.ConfigurationError{Field: key, Reason: "must be a string"}
		}
		return strings.TrimSpace(str), nil
	}
}

// validateAgainstCurrent overlays the candidate value on the stored settings
// and runs the analytics validation.
func (s *Service) validateAgainstCurrent(key, value string) error {
	if _, isAnalytics := SettingDefaults[key]; !isAnalytics || strings.HasPrefix(key, "schedule_") || secretKeys[key] {
		return nil
	}

	cfg := &config.Config{Port: 1, Analytics: config.DefaultAnalyticsConfig()}
	return cfg.UpdateFromSettings(overlayGetter{repo: s.repo, key: key, value: value})
}

// overlayGetter reads through to the repository except for one pending key
type overlayGetter struct {
	repo  *Repository
	key   string
	value string
}

func (o overlayGetter) Get(key string) (*string, error) {
	if key == o.key {
		v := o.value
		return &v, nil
	}
	return o.repo.Get(key)
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
