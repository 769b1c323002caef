package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/marrow-labs/truthspine/pkg/fixedpoint"
	"github.com/marrow-labs/truthspine/pkg/regime"
)

const sampleProfile = `
name: prod
regime_thresholds:
  high_risk: "-0.040000"
  stress: "-0.090000"
  crash: "-0.140000"
gates:
  - gate_id: chain_integrity
    gate_class: CLASS1_HARD_STOP
    required: true
    blocking: true
    artifact_path: reports/chain_integrity_v1/{DAY}/chain_integrity.v1.json
    pass_status_values: [OK]
`

func writeProfile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadProfile_FullProfile(t *testing.T) {
	p, err := LoadProfile(writeProfile(t, "profile_prod.yaml", sampleProfile))
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.Name != "prod" {
		t.Errorf("expected name 'prod', got %q", p.Name)
	}

	th, err := p.RegimeThresholds()
	if err != nil {
		t.Fatalf("RegimeThresholds: %v", err)
	}
	if th.Crash != fixedpoint.MustParse("-0.140000") {
		t.Errorf("crash threshold not parsed exactly: %v", th.Crash)
	}

	reg, err := p.GateRegistry()
	if err != nil {
		t.Fatalf("GateRegistry: %v", err)
	}
	if len(reg.Gates) != 1 || reg.Gates[0].GateID != "chain_integrity" {
		t.Errorf("unexpected registry: %+v", reg.Gates)
	}
	if reg.Gates[0].StatusField != "status" {
		t.Errorf("status_field default not applied: %q", reg.Gates[0].StatusField)
	}
}

func TestLoadProfile_NameDerivedFromFilename(t *testing.T) {
	p, err := LoadProfile(writeProfile(t, "profile_staging.yaml", "regime_thresholds: {}\n"))
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.Name != "staging" {
		t.Errorf("expected name 'staging', got %q", p.Name)
	}
}

func TestLoadProfile_DefaultsThresholdsWhenUnset(t *testing.T) {
	p, err := LoadProfile(writeProfile(t, "profile_min.yaml", "name: min\n"))
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	th, err := p.RegimeThresholds()
	if err != nil {
		t.Fatalf("RegimeThresholds: %v", err)
	}
	if th != regime.DefaultThresholds() {
		t.Errorf("expected governed defaults, got %+v", th)
	}
}

func TestLoadProfile_RejectsUnparsableThresholds(t *testing.T) {
	bad := "regime_thresholds:\n  high_risk: \"-5e-2\"\n  stress: \"-0.090000\"\n  crash: \"-0.140000\"\n"
	if _, err := LoadProfile(writeProfile(t, "profile_bad.yaml", bad)); err == nil {
		t.Fatal("expected error for exponent-style threshold")
	}
}

func TestLoadProfile_RejectsMisorderedThresholds(t *testing.T) {
	bad := "regime_thresholds:\n  high_risk: \"-0.140000\"\n  stress: \"-0.090000\"\n  crash: \"-0.040000\"\n"
	if _, err := LoadProfile(writeProfile(t, "profile_bad.yaml", bad)); err == nil {
		t.Fatal("expected error for crash line above high_risk line")
	}
}

func TestLoadProfile_MissingFile(t *testing.T) {
	if _, err := LoadProfile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing profile")
	}
}
