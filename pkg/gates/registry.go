package gates

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Class is a gate severity class. Precedence runs most severe first.
type Class string

const (
	Class1HardStop     Class = "CLASS1_HARD_STOP"
	Class2RiskHardStop Class = "CLASS2_RISK_HARD_STOP"
	Class3Degradation  Class = "CLASS3_CONTROLLED_DEGRADATION"
	Class4Advisory     Class = "CLASS4_ADVISORY"
)

var classPrecedence = map[Class]int{
	Class1HardStop:     1,
	Class2RiskHardStop: 2,
	Class3Degradation:  3,
	Class4Advisory:     4,
}

// Precedence returns the class rank, lower being more severe. Unknown
// classes rank after every known class.
func (c Class) Precedence() int {
	if p, ok := classPrecedence[c]; ok {
		return p
	}
	return 9999
}

// Known reports whether the class is a registered severity class.
func (c Class) Known() bool {
	_, ok := classPrecedence[c]
	return ok
}

// ErrBadRegistry marks a structurally invalid gate registry.
var ErrBadRegistry = errors.New("gates: invalid registry")

// Spec declares one gate: where its artifact lives for a day, which field
// carries its status, and which values count as passing. The registry is
// declarative; a single evaluator consumes every spec the same way.
type Spec struct {
	GateID       string   `yaml:"gate_id"`
	Class        Class    `yaml:"gate_class"`
	Required     bool     `yaml:"required"`
	Blocking     bool     `yaml:"blocking"`
	ArtifactPath string   `yaml:"artifact_path"` // template, {DAY} substituted
	StatusField  string   `yaml:"status_field"`
	PassValues   []string `yaml:"pass_status_values"`
}

// Path renders the gate's artifact path for a day.
func (s Spec) Path(day string) string {
	return strings.ReplaceAll(s.ArtifactPath, "{DAY}", day)
}

// Registry is the governed set of gates evaluated for each day.
type Registry struct {
	Gates []Spec `yaml:"gates"`
}

// LoadRegistry parses and validates a YAML gate registry.
func LoadRegistry(data []byte) (*Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRegistry, err)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Validate checks the registry's structural invariants and fills the
// default status field where omitted.
func (r *Registry) Validate() error {
	if len(r.Gates) == 0 {
		return fmt.Errorf("%w: no gates declared", ErrBadRegistry)
	}
	seen := make(map[string]bool, len(r.Gates))
	for i, g := range r.Gates {
		if g.GateID == "" {
			return fmt.Errorf("%w: gate %d: gate_id required", ErrBadRegistry, i)
		}
		if seen[g.GateID] {
			return fmt.Errorf("%w: duplicate gate_id %q", ErrBadRegistry, g.GateID)
		}
		seen[g.GateID] = true
		if !g.Class.Known() {
			return fmt.Errorf("%w: gate %q: unknown class %q", ErrBadRegistry, g.GateID, g.Class)
		}
		if g.ArtifactPath == "" {
			return fmt.Errorf("%w: gate %q: artifact_path required", ErrBadRegistry, g.GateID)
		}
		if g.StatusField == "" {
			r.Gates[i].StatusField = "status"
		}
		if len(g.PassValues) == 0 {
			return fmt.Errorf("%w: gate %q: pass_status_values required", ErrBadRegistry, g.GateID)
		}
	}
	return nil
}
