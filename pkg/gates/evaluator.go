package gates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/marrow-labs/truthspine/pkg/artifacts"
	"github.com/marrow-labs/truthspine/pkg/audit"
	"github.com/marrow-labs/truthspine/pkg/canonicalize"
)

// VerdictFamily is the artifact family of consolidated verdicts.
const VerdictFamily = "reports/gate_stack_verdict_v1"

// OverrideFamily holds governed per-gate, per-day operator overrides.
const OverrideFamily = "reports/operator_override_v1"

// Evaluated-state values for one gate.
const (
	StatePass       = "PASS"
	StateFail       = "FAIL"
	StateMissing    = "MISSING"
	StateOverridden = "OVERRIDDEN"
	StateUnknown    = "UNKNOWN"
)

// Verdict statuses.
const (
	VerdictPass = "PASS"
	VerdictFail = "FAIL"
)

// Result is the evaluation of one gate against its day artifact.
type Result struct {
	GateID         string   `json:"gate_id"`
	Class          Class    `json:"gate_class"`
	EffectiveClass Class    `json:"effective_class"`
	Required       bool     `json:"required"`
	Blocking       bool     `json:"blocking"`
	Status         string   `json:"status"`
	State          string   `json:"evaluated_state"`
	ArtifactPath   string   `json:"artifact_path"`
	ArtifactSHA256 string   `json:"artifact_sha256"`
	ReasonCodes    []string `json:"reason_codes"`
}

// Verdict is the consolidated, day-scoped outcome over every gate.
type Verdict struct {
	Day           string
	Status        string
	BlockingClass Class
	ReasonCodes   []string
	Gates         []Result
	Write         artifacts.WriteResult
}

// Evaluator consolidates the day's gate artifacts into one verdict.
// Evaluation is pure over the store contents; the only write is the
// verdict artifact itself.
type Evaluator struct {
	store    artifacts.Store
	producer artifacts.Producer
	auditor  audit.Logger
	registry *Registry
}

func NewEvaluator(store artifacts.Store, producer artifacts.Producer, auditor audit.Logger, registry *Registry) *Evaluator {
	if auditor == nil {
		auditor = audit.Nop()
	}
	return &Evaluator{store: store, producer: producer, auditor: auditor, registry: registry}
}

// Evaluate reads every registered gate artifact for the day, applies
// class precedence, and writes the immutable consolidated verdict.
func (e *Evaluator) Evaluate(ctx context.Context, day string) (*Verdict, error) {
	if err := artifacts.ValidateDayKey(day); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(e.registry.Gates))
	manifest := make([]interface{}, 0, len(e.registry.Gates))
	for _, spec := range e.registry.Gates {
		r := e.evalGate(ctx, day, spec)
		results = append(results, r)
		manifest = append(manifest, map[string]interface{}{
			"type": r.GateID, "path": r.ArtifactPath, "sha256": r.ArtifactSHA256,
		})
	}

	// Stable replay order: effective precedence, then gate id.
	sort.SliceStable(results, func(i, j int) bool {
		pi, pj := results[i].EffectiveClass.Precedence(), results[j].EffectiveClass.Precedence()
		if pi != pj {
			return pi < pj
		}
		return results[i].GateID < results[j].GateID
	})

	verdict := &Verdict{Day: day, Status: VerdictPass, BlockingClass: "", Gates: results}
	for i := range results {
		r := &results[i]
		switch r.State {
		case StatePass, StateOverridden:
			if r.State == StateOverridden {
				verdict.ReasonCodes = append(verdict.ReasonCodes, "GATE_OVERRIDDEN:"+r.GateID)
			}
		case StateMissing, StateFail, StateUnknown:
			if e.blocks(r) {
				if verdict.Status == VerdictPass {
					verdict.Status = VerdictFail
					verdict.BlockingClass = r.EffectiveClass
				}
				verdict.ReasonCodes = append(verdict.ReasonCodes,
					fmt.Sprintf("GATE_REQUIRED_NOT_PASS:%s:%s", r.GateID, r.Status))
				if r.State == StateMissing {
					verdict.ReasonCodes = append(verdict.ReasonCodes, "GATE_MISSING:"+r.GateID)
				}
			} else {
				// Non-blocking degradation and advisory findings are
				// surfaced, never enforced.
				verdict.ReasonCodes = append(verdict.ReasonCodes,
					fmt.Sprintf("GATE_DEGRADED:%s:%s", r.GateID, r.Status))
			}
		}
	}

	if err := e.writeVerdict(ctx, verdict, manifest); err != nil {
		return nil, err
	}

	//nolint:errcheck // audit failures never alter the verdict
	e.auditor.Record(ctx, audit.EventVerdict, "consolidate", VerdictFamily, day, map[string]interface{}{
		"status":         verdict.Status,
		"blocking_class": string(verdict.BlockingClass),
		"reason_codes":   verdict.ReasonCodes,
	})
	return verdict, nil
}

// blocks reports whether a non-passing gate forces a FAIL verdict. Any
// required gate that did not pass blocks (missing and unparsable ones were
// already escalated to CLASS1). A non-required gate blocks only when the
// registry marks it blocking and its artifact was present but failing.
func (e *Evaluator) blocks(r *Result) bool {
	if r.Required {
		return true
	}
	return r.Blocking && r.State == StateFail
}

func (e *Evaluator) evalGate(ctx context.Context, day string, spec Spec) Result {
	r := Result{
		GateID:         spec.GateID,
		Class:          spec.Class,
		EffectiveClass: spec.Class,
		Required:       spec.Required,
		Blocking:       spec.Blocking,
		ArtifactPath:   spec.Path(day),
		ReasonCodes:    []string{},
	}

	data, err := e.store.Read(ctx, r.ArtifactPath)
	if err != nil {
		r.Status = StateMissing
		r.State = StateMissing
		r.ArtifactSHA256 = canonicalize.HashBytes(nil)
		r.ReasonCodes = append(r.ReasonCodes, "MISSING_GATE_ARTIFACT")
		if spec.Required {
			// Fail-closed: a required gate that cannot be read is a
			// hard stop regardless of its nominal class.
			r.EffectiveClass = Class1HardStop
		}
		return r
	}
	r.ArtifactSHA256 = canonicalize.HashBytes(data)

	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		r.Status = StateUnknown
		r.State = StateUnknown
		r.ReasonCodes = append(r.ReasonCodes, "PARSE_ERROR")
		if spec.Required {
			r.EffectiveClass = Class1HardStop
		}
		return r
	}

	raw, _ := obj[spec.StatusField].(string)
	r.Status = strings.ToUpper(strings.TrimSpace(raw))
	if r.Status == "" {
		r.Status = StateUnknown
	}
	if codes, ok := obj["reason_codes"].([]interface{}); ok {
		for _, c := range codes {
			if s, ok := c.(string); ok {
				r.ReasonCodes = append(r.ReasonCodes, s)
			}
		}
	}

	for _, pass := range spec.PassValues {
		if r.Status == strings.ToUpper(strings.TrimSpace(pass)) {
			r.State = StatePass
			return r
		}
	}
	// CLASS2 failures yield to a governed override bound to this exact
	// gate and day. CLASS1 never does.
	if spec.Class == Class2RiskHardStop && e.overridden(ctx, day, spec.GateID) {
		r.State = StateOverridden
		return r
	}
	r.State = StateFail
	return r
}

// overridden reports whether a governed operator override exists for this
// exact gate and day. The override must be a sealed artifact whose
// gate_id and day_utc bind it; anything else is ignored, never trusted.
func (e *Evaluator) overridden(ctx context.Context, day, gateID string) bool {
	data, err := e.store.Read(ctx, artifacts.DayPath(OverrideFamily, day, gateID+".json"))
	if err != nil {
		return false
	}
	rec, err := artifacts.VerifySealed(data)
	if err != nil {
		return false
	}
	if id, _ := rec["gate_id"].(string); id != gateID {
		return false
	}
	if d, _ := rec["day_utc"].(string); d != day {
		return false
	}
	status, _ := rec["status"].(string)
	return strings.ToUpper(status) == "APPROVED"
}

func (e *Evaluator) writeVerdict(ctx context.Context, v *Verdict, manifest []interface{}) error {
	gatesOut := make([]interface{}, 0, len(v.Gates))
	for _, g := range v.Gates {
		gatesOut = append(gatesOut, map[string]interface{}{
			"gate_id":         g.GateID,
			"gate_class":      string(g.Class),
			"effective_class": string(g.EffectiveClass),
			"required":        g.Required,
			"blocking":        g.Blocking,
			"status":          g.Status,
			"evaluated_state": g.State,
			"artifact_path":   g.ArtifactPath,
			"artifact_sha256": g.ArtifactSHA256,
			"reason_codes":    toAny(g.ReasonCodes),
		})
	}

	record := map[string]interface{}{
		"schema_id":      "gate_stack_verdict",
		"schema_version": "v1",
		"day_utc":        v.Day,
		"produced_utc":   artifacts.ProducedUTC(v.Day),
		"producer":       map[string]interface{}{"repo": e.producer.Repo, "git_sha": e.producer.GitSHA, "module": e.producer.Module},
		"status":         v.Status,
		"blocking_class": blockingClassField(v.BlockingClass),
		"reason_codes":   append([]string(nil), v.ReasonCodes...),
		"input_manifest": manifest,
		"gates":          gatesOut,
	}
	payload, _, err := artifacts.Seal(record)
	if err != nil {
		return err
	}
	wr, err := e.store.PutImmutable(ctx, artifacts.DayPath(VerdictFamily, v.Day, "gate_stack_verdict.v1.json"), payload)
	if err != nil {
		var conflict *artifacts.ConflictError
		if errors.As(err, &conflict) {
			return fmt.Errorf("gates: verdict for %s already exists with different bytes: %w", v.Day, err)
		}
		return err
	}
	v.Write = wr
	if _, err := artifacts.WriteLatestPointer(ctx, e.store, VerdictFamily, v.Day, wr); err != nil {
		return err
	}
	return nil
}

func blockingClassField(c Class) string {
	if c == "" {
		return "NONE"
	}
	return string(c)
}

func toAny(in []string) []interface{} {
	out := make([]interface{}, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}
