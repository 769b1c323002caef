package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/marrow-labs/truthspine/pkg/fixedpoint"
	"github.com/marrow-labs/truthspine/pkg/gates"
	"github.com/marrow-labs/truthspine/pkg/regime"
)

// Profile is an operating profile: the regime cut lines and the gate
// registry governing one deployment.
type Profile struct {
	Name       string           `yaml:"name"`
	Thresholds ThresholdsConfig `yaml:"regime_thresholds"`
	Gates      []gates.Spec     `yaml:"gates"`
}

// ThresholdsConfig carries the drawdown cut lines as fixed decimal
// strings; they are parsed exactly, never as floats.
type ThresholdsConfig struct {
	HighRisk string `yaml:"high_risk"`
	Stress   string `yaml:"stress"`
	Crash    string `yaml:"crash"`
}

// LoadProfile loads and validates an operating profile from a YAML file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", path, err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", path, err)
	}

	if profile.Name == "" {
		// profile_default.yaml -> default
		base := filepath.Base(path)
		profile.Name = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
	}

	if _, err := profile.RegimeThresholds(); err != nil {
		return nil, fmt.Errorf("profile %q: %w", path, err)
	}
	if len(profile.Gates) > 0 {
		if _, err := profile.GateRegistry(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", path, err)
		}
	}
	return &profile, nil
}

// RegimeThresholds returns the profile's cut lines, falling back to the
// governed defaults when unset.
func (p *Profile) RegimeThresholds() (regime.Thresholds, error) {
	if p.Thresholds == (ThresholdsConfig{}) {
		return regime.DefaultThresholds(), nil
	}
	th := regime.Thresholds{}
	var err error
	if th.HighRisk, err = fixedpoint.Parse(p.Thresholds.HighRisk); err != nil {
		return th, fmt.Errorf("regime_thresholds.high_risk: %w", err)
	}
	if th.Stress, err = fixedpoint.Parse(p.Thresholds.Stress); err != nil {
		return th, fmt.Errorf("regime_thresholds.stress: %w", err)
	}
	if th.Crash, err = fixedpoint.Parse(p.Thresholds.Crash); err != nil {
		return th, fmt.Errorf("regime_thresholds.crash: %w", err)
	}
	// Cut lines must be ordered most severe last.
	if !th.Crash.LessOrEqual(th.Stress) || !th.Stress.LessOrEqual(th.HighRisk) {
		return th, fmt.Errorf("regime_thresholds: require crash <= stress <= high_risk")
	}
	return th, nil
}

// GateRegistry returns the profile's validated gate registry.
func (p *Profile) GateRegistry() (*gates.Registry, error) {
	reg := &gates.Registry{Gates: p.Gates}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}
