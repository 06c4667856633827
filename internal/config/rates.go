package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/fjod/go_pos/internal/billing"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Rates are the two coworking tariffs in effect.
type Rates struct {
	General   billing.RateTable
	InSession billing.RateTable
}

// DefaultRates returns the built-in tariffs.
func DefaultRates() Rates {
	return Rates{General: billing.GeneralRates, InSession: billing.InSessionRates}
}

// Table picks a tariff by name: "general" or "in-session".
func (r Rates) Table(name string) (billing.RateTable, error) {
	switch name {
	case "", r.General.Name, "general":
		return r.General, nil
	case r.InSession.Name, "in-session", "in_session":
		return r.InSession, nil
	}
	return billing.RateTable{}, fmt.Errorf("%w: unknown tariff %q", billing.ErrInvalidRates, name)
}

type rateFile struct {
	General   *rateEntry `yaml:"general"`
	InSession *rateEntry `yaml:"in_session"`
}

type rateEntry struct {
	FirstHour         string `yaml:"first_hour"`
	HalfHour          string `yaml:"half_hour"`
	Day               string `yaml:"day"`
	DayThresholdHours int    `yaml:"day_threshold_hours"`
	ToleranceMinutes  *int   `yaml:"tolerance_minutes"`
}

// LoadRates reads tariffs from a YAML file. An empty path yields the
// built-in tariffs; a tariff missing from the file keeps its default.
func LoadRates(path string) (Rates, error) {
	rates := DefaultRates()
	if path == "" {
		return rates, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Rates{}, fmt.Errorf("failed to read rates file: %w", err)
	}

	var file rateFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return Rates{}, fmt.Errorf("failed to parse rates file: %w", err)
	}

	if file.General != nil {
		if rates.General, err = file.General.apply(rates.General); err != nil {
			return Rates{}, err
		}
	}
	if file.InSession != nil {
		if rates.InSession, err = file.InSession.apply(rates.InSession); err != nil {
			return Rates{}, err
		}
	}
	return rates, nil
}

func (e rateEntry) apply(base billing.RateTable) (billing.RateTable, error) {
	t := base
	var err error
	if t.FirstHourRate, err = amount(e.FirstHour, base.FirstHourRate); err != nil {
		return t, fmt.Errorf("%s first_hour: %w", base.Name, err)
	}
	if t.HalfHourRate, err = amount(e.HalfHour, base.HalfHourRate); err != nil {
		return t, fmt.Errorf("%s half_hour: %w", base.Name, err)
	}
	if t.DayRate, err = amount(e.Day, base.DayRate); err != nil {
		return t, fmt.Errorf("%s day: %w", base.Name, err)
	}
	if e.DayThresholdHours != 0 {
		t.DayThresholdHours = e.DayThresholdHours
	}
	if e.ToleranceMinutes != nil {
		t.ToleranceMinutes = *e.ToleranceMinutes
	}
	return t, t.Validate()
}

func amount(s string, fallback decimal.Decimal) (decimal.Decimal, error) {
	if s == "" {
		return fallback, nil
	}
	return decimal.NewFromString(s)
}
