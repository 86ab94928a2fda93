package scoring

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/formbricks/themes/internal/huberrors"
)

// validate is read-only after package initialization.
var validate = validator.New()

// ValidateConfig checks that every weight and priority lies in [0,1] and that the five positive
// weights are not all zero.
func ValidateConfig(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fe.Namespace()
			}

			return huberrors.NewValidationError(strings.Join(fields, ","),
				fmt.Sprintf("must be between 0 and 1: %s", strings.Join(fields, ", ")))
		}

		return huberrors.NewValidationError("config", err.Error())
	}

	w := cfg.Weights
	if w.Frequency+w.ACV+w.Sentiment+w.Segment+w.Trend == 0 {
		return huberrors.NewValidationError("weights", "at least one positive score weight must be non-zero")
	}

	return nil
}

// ConfigStore holds the scoring configuration used by new runs. An override set at runtime
// replaces the defaults until Reset; it is not persisted.
type ConfigStore struct {
	mu       sync.RWMutex
	defaults Config
	override *Config
}

// NewConfigStore returns a store serving defaults.
func NewConfigStore(defaults Config) *ConfigStore {
	return &ConfigStore{defaults: defaults}
}

// Get returns the effective configuration and whether it is an override.
func (s *ConfigStore) Get() (Config, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.override != nil {
		return *s.override, true
	}

	return s.defaults, false
}

// Set validates and installs an override.
func (s *ConfigStore) Set(cfg Config) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}

	s.mu.Lock()
	s.override = &cfg
	s.mu.Unlock()

	return nil
}

// Reset drops the override.
func (s *ConfigStore) Reset() {
	s.mu.Lock()
	s.override = nil
	s.mu.Unlock()
}
