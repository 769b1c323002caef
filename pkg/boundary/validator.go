package boundary

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/marrow-labs/truthspine/pkg/artifacts"
	"github.com/marrow-labs/truthspine/pkg/audit"
	"github.com/marrow-labs/truthspine/pkg/canonicalize"
	"github.com/marrow-labs/truthspine/pkg/evidence"
)

// SubmissionsFamily is the artifact family holding per-attempt evidence.
const SubmissionsFamily = "execution_evidence_v1/submissions"

// FailuresFamily holds hard-failure explanation artifacts.
const FailuresFamily = "execution_evidence_v1/failures"

// Outcome is the single terminal result of one boundary evaluation.
type Outcome struct {
	Boundary   Boundary
	State      State
	Violations []Violation

	// SubmissionID is the deterministic, hash-derived attempt identity.
	SubmissionID string

	// Artifacts lists every artifact written (or skipped identical) by this
	// evaluation, in write order. For ALLOWED it holds the continuation
	// record(s); for VETOED exactly the veto record.
	Artifacts []artifacts.WriteResult

	// RecordHash is the canonical self-hash of the last continuation record
	// (ALLOWED) or of the veto record (VETOED).
	RecordHash string

	// BindingPersisted reports that the binding record was durably written
	// and re-verified. PreCall requires it.
	BindingPersisted bool
}

// ReasonCodes returns the sorted, deduplicated set of violation codes.
func (o *Outcome) ReasonCodes() []string {
	seen := make(map[string]bool, len(o.Violations))
	codes := make([]string, 0, len(o.Violations))
	for _, v := range o.Violations {
		if !seen[v.Code] {
			seen[v.Code] = true
			codes = append(codes, v.Code)
		}
	}
	sort.Strings(codes)
	return codes
}

// Validator evaluates invariant sets at submission boundaries and emits
// the evidence chain. It holds no per-attempt state; each Evaluate call is
// independent and idempotent for identical inputs.
type Validator struct {
	store    artifacts.Store
	producer artifacts.Producer
	auditor  audit.Logger
	versions *artifacts.VersionRegistry
}

// NewValidator creates a Validator. auditor may be nil.
func NewValidator(store artifacts.Store, producer artifacts.Producer, auditor audit.Logger) *Validator {
	if auditor == nil {
		auditor = audit.Nop()
	}
	return &Validator{
		store:    store,
		producer: producer,
		auditor:  auditor,
		versions: DefaultVersions(),
	}
}

// DefaultVersions declares the active schema version per evidence family.
func DefaultVersions() *artifacts.VersionRegistry {
	r := artifacts.NewVersionRegistry()
	// Registration of literal versions cannot fail.
	_ = r.Register(string(evidence.KindIntent), "v2", "v1", "v2")
	_ = r.Register(string(evidence.KindSnapshot), "v1", "v1")
	_ = r.Register(string(evidence.KindCertificate), "v1", "v1")
	_ = r.Register(string(evidence.KindPlan), "v1", "v1")
	_ = r.Register(string(evidence.KindLedger), "v1", "v1")
	_ = r.Register(string(evidence.KindBinding), "v1", "v1")
	_ = r.Register(string(evidence.KindSubmissionRecord), "v1", "v1")
	_ = r.Register(string(evidence.KindLifecycleEvent), "v1", "v1")
	_ = r.Register(string(evidence.KindVeto), "v1", "v1")
	return r
}

// Evaluate runs the boundary's invariant set against inputs and drives the
// state machine to exactly one terminal state. All invariants are
// evaluated; violations are never short-circuited so audits see the full
// list. The returned error is non-nil only when even the failure path
// could not be recorded.
func (v *Validator) Evaluate(ctx context.Context, b Boundary, in *Inputs) (*Outcome, error) {
	set, err := InvariantSet(b)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Boundary: b, State: Pending}

	var violations []Violation
	for _, inv := range set {
		if viol := inv.Check(in); viol != nil {
			violations = append(violations, *viol)
		}
	}
	out.Violations = violations

	submissionID, idErr := v.submissionID(in)
	if idErr != nil {
		violations = append(violations, Violation{
			Code: ReasonCanonicalization, Category: CategoryHardFail, Detail: idErr.Error(),
		})
		out.Violations = violations
	}
	out.SubmissionID = submissionID

	if hard := firstHardFail(violations); hard != nil {
		return v.hardFail(ctx, out, in, *hard)
	}
	if len(violations) > 0 {
		return v.veto(ctx, out, in)
	}
	return v.allow(ctx, out, in)
}

// PreCall is the gate in front of every externally side-effecting
// collaborator call. It returns nil only for a SUBMIT outcome that reached
// ALLOWED with a durably persisted binding record.
func (v *Validator) PreCall(outcome *Outcome) error {
	if outcome == nil {
		return errors.New("boundary: pre-call gate: nil outcome")
	}
	if outcome.Boundary != Submit {
		return fmt.Errorf("boundary: pre-call gate requires a SUBMIT outcome, got %s", outcome.Boundary)
	}
	if outcome.State != Allowed {
		return fmt.Errorf("boundary: pre-call gate refused: state=%s", outcome.State)
	}
	if !outcome.BindingPersisted {
		return fmt.Errorf("boundary: pre-call gate refused: %s", ReasonBindingNotPersisted)
	}
	return nil
}

// submissionID derives the attempt identity from the intent's canonical
// content hash. Identity is a pure function of content, never of time.
func (v *Validator) submissionID(in *Inputs) (string, error) {
	if len(in.Intent) == 0 {
		return "", nil
	}
	h, err := inputHash(in.Intent)
	if err != nil {
		return "", fmt.Errorf("intent hash: %w", err)
	}
	return h[:16], nil
}

func firstHardFail(violations []Violation) *Violation {
	for i := range violations {
		if violations[i].Category == CategoryHardFail {
			return &violations[i]
		}
	}
	return nil
}

// --- terminal transitions ---

func (v *Validator) allow(ctx context.Context, out *Outcome, in *Inputs) (*Outcome, error) {
	var err error
	switch out.Boundary {
	case Intent:
		err = v.emitIntent(ctx, out, in)
	case Mapping:
		err = v.emitPlanAndBinding(ctx, out, in)
	case Submit:
		err = v.emitSubmissionRecord(ctx, out, in)
	}
	if err != nil {
		return v.escalate(ctx, out, in, err)
	}

	out.State = Allowed
	v.record(ctx, out)
	return out, nil
}

func (v *Validator) veto(ctx context.Context, out *Outcome, in *Inputs) (*Outcome, error) {
	record, err := v.buildVeto(out, in)
	if err != nil {
		return v.escalate(ctx, out, in, fmt.Errorf("%s: %w", ReasonMalformedVeto, err))
	}

	payload, _, err := artifacts.Seal(record)
	if err != nil {
		return v.escalate(ctx, out, in, fmt.Errorf("%s: %w", ReasonMalformedVeto, err))
	}

	wr, err := v.store.PutImmutable(ctx, v.attemptPath(in, out, "veto_record.v1.json"), payload)
	if err != nil {
		return v.escalate(ctx, out, in, err)
	}
	out.Artifacts = append(out.Artifacts, wr)
	out.RecordHash, _ = record[artifacts.SelfHashField].(string)

	out.State = Vetoed
	v.record(ctx, out)
	return out, nil
}

func (v *Validator) hardFail(ctx context.Context, out *Outcome, in *Inputs, cause Violation) (*Outcome, error) {
	out.State = HardFailed

	// Best-effort explanatory failure artifact. Uniqueness comes from the
	// failing boundary and attempt identity; a conflicting rerun with the
	// same failure is an identical-byte no-op.
	name := fmt.Sprintf("%s.%s.failure.v1.json", nonEmpty(out.SubmissionID, "unidentified"), out.Boundary)
	record := map[string]interface{}{
		"schema_id":       "write_failure",
		"schema_version":  "v1",
		"day_utc":         in.Day,
		"produced_utc":    artifacts.ProducedUTC(in.Day),
		"producer":        producerFields(v.producer),
		"status":          "HARD_FAILED",
		"reason_codes":    uniqueCodes(out.Violations),
		"input_manifest":  []interface{}{},
		"boundary":        string(out.Boundary),
		"cause":           cause.Detail,
		"observed_at_utc": in.EvalTime,
	}
	if payload, _, err := artifacts.Seal(record); err == nil {
		if wr, err := v.store.PutImmutable(ctx, artifacts.DayPath(FailuresFamily, in.Day, name), payload); err == nil {
			out.Artifacts = append(out.Artifacts, wr)
		}
	}

	v.record(ctx, out)
	return out, nil
}

// escalate converts an in-flight error (canonicalization, store conflict,
// malformed veto) into the HARD_FAILED terminal state. Integrity errors
// are never caught and defaulted.
func (v *Validator) escalate(ctx context.Context, out *Outcome, in *Inputs, err error) (*Outcome, error) {
	code := ReasonCanonicalization
	switch {
	case errors.Is(err, artifacts.ErrImmutableConflict):
		code = ReasonAttemptedRewrite
	case errors.Is(err, evidence.ErrAmbiguousSelection):
		code = ReasonNondeterministicRule
	case errors.Is(err, evidence.ErrChainMismatch):
		code = ReasonHashMismatch
	case errors.Is(err, artifacts.ErrNotFound):
		code = ReasonBindingNotPersisted
	case errors.Is(err, artifacts.ErrVersionConflict), errors.Is(err, artifacts.ErrEnvelopeInvalid):
		code = ReasonMalformedVeto
	}
	cause := Violation{Code: code, Category: CategoryHardFail, Detail: err.Error()}
	out.Violations = append(out.Violations, cause)
	return v.hardFail(ctx, out, in, cause)
}

// --- continuation records ---

func (v *Validator) emitIntent(ctx context.Context, out *Outcome, in *Inputs) error {
	record := v.envelope(in, string(evidence.KindIntent), "v2", "OK", nil)
	record["intent"] = in.Intent
	return v.sealAndPut(ctx, out, in, record, "intent.v2.json")
}

func (v *Validator) emitPlanAndBinding(ctx context.Context, out *Outcome, in *Inputs) error {
	intentHash, err := v.persistedHash(ctx, in, out, "intent.v2.json")
	if err != nil {
		return err
	}
	snapHash, err := inputHash(in.Snapshot)
	if err != nil {
		return err
	}
	certHash, err := inputHash(in.Certificate)
	if err != nil {
		return err
	}

	plan := v.envelope(in, string(evidence.KindPlan), "v1", "OK", []artifacts.ManifestEntry{
		{Type: "options_chain_snapshot", Path: pointerOrDefault(in.Pointers, 0), SHA256: snapHash},
		{Type: "freshness_certificate", Path: pointerOrDefault(in.Pointers, 1), SHA256: certHash},
	})
	plan[evidence.UpstreamHashField] = intentHash
	plan["intent_hash"] = intentHash
	plan["chain_snapshot_hash"] = snapHash
	plan["freshness_cert_hash"] = certHash
	plan["tick_size"] = in.TickSize
	if err := v.sealAndPut(ctx, out, in, plan, "order_plan.v1.json"); err != nil {
		return err
	}
	planHash := out.RecordHash

	binding := v.envelope(in, string(evidence.KindBinding), "v1", "OK", nil)
	binding[evidence.UpstreamHashField] = planHash
	binding["plan_hash"] = planHash
	binding["binding_digest"] = planHash
	if err := v.sealAndPut(ctx, out, in, binding, "binding_record.v1.json"); err != nil {
		return err
	}
	out.BindingPersisted = true
	return nil
}

func (v *Validator) emitSubmissionRecord(ctx context.Context, out *Outcome, in *Inputs) error {
	// Re-verify the persisted binding from durable bytes; prior outcomes
	// are never trusted.
	bindingHash, err := v.persistedHash(ctx, in, out, "binding_record.v1.json")
	if err != nil {
		return err
	}
	out.BindingPersisted = true

	record := v.envelope(in, string(evidence.KindSubmissionRecord), "v1", "OK", nil)
	record[evidence.UpstreamHashField] = bindingHash
	record["binding_hash"] = bindingHash
	record["submission_id"] = out.SubmissionID
	return v.sealAndPut(ctx, out, in, record, "submission_record.v1.json")
}

// persistedHash reads an already-persisted chain record for this attempt
// and returns its verified self-hash.
func (v *Validator) persistedHash(ctx context.Context, in *Inputs, out *Outcome, artifact string) (string, error) {
	data, err := v.store.Read(ctx, v.attemptPath(in, out, artifact))
	if err != nil {
		if errors.Is(err, artifacts.ErrNotFound) {
			return "", fmt.Errorf("%s: upstream record %s not persisted: %w", ReasonBindingNotPersisted, artifact, err)
		}
		return "", err
	}
	rec, err := evidence.Decode(data)
	if err != nil {
		return "", err
	}
	computed, err := rec.ComputeSelfHash()
	if err != nil {
		return "", err
	}
	if computed != rec.SelfHash {
		return "", fmt.Errorf("%s: %s recorded=%s computed=%s: %w",
			ReasonHashMismatch, artifact, rec.SelfHash, computed, evidence.ErrChainMismatch)
	}
	return rec.SelfHash, nil
}

func (v *Validator) sealAndPut(ctx context.Context, out *Outcome, in *Inputs, record map[string]interface{}, artifact string) error {
	schemaID, _ := record["schema_id"].(string)
	version, _ := record["schema_version"].(string)
	if err := v.versions.CheckExclusive(schemaID, version); err != nil {
		return err
	}

	payload, _, err := artifacts.Seal(record)
	if err != nil {
		return err
	}
	wr, err := v.store.PutImmutable(ctx, v.attemptPath(in, out, artifact), payload)
	if err != nil {
		return err
	}
	out.Artifacts = append(out.Artifacts, wr)
	out.RecordHash, _ = record[artifacts.SelfHashField].(string)
	return nil
}

func (v *Validator) buildVeto(out *Outcome, in *Inputs) (map[string]interface{}, error) {
	intentHash, err := absentOrHash(in.Intent)
	if err != nil {
		return nil, err
	}
	snapHash, err := absentOrHash(in.Snapshot)
	if err != nil {
		return nil, err
	}
	certHash, err := absentOrHash(in.Certificate)
	if err != nil {
		return nil, err
	}

	inputs := map[string]interface{}{
		"intent_hash":         intentHash,
		"chain_snapshot_hash": snapHash,
		"freshness_cert_hash": certHash,
	}
	// A veto terminates an attempt that produced no continuation record;
	// its upstream binding is the hash of the consumed-inputs block.
	upstream, err := canonicalize.Hash(inputs)
	if err != nil {
		return nil, err
	}

	details := make([]interface{}, 0, len(out.Violations))
	for _, viol := range out.Violations {
		details = append(details, map[string]interface{}{
			"code":   viol.Code,
			"detail": viol.Detail,
		})
	}

	record := v.envelope(in, string(evidence.KindVeto), "v1", "BLOCKED", nil)
	record[evidence.UpstreamHashField] = upstream
	record["boundary"] = string(out.Boundary)
	record["reason_codes"] = uniqueCodes(out.Violations)
	record["violations"] = details
	record["inputs"] = inputs
	record["pointers"] = pointersOrNone(in.Pointers)
	record["observed_at_utc"] = in.EvalTime
	return record, nil
}

func (v *Validator) envelope(in *Inputs, schemaID, version, status string, manifest []artifacts.ManifestEntry) map[string]interface{} {
	entries := make([]interface{}, 0, len(manifest))
	for _, m := range manifest {
		entries = append(entries, map[string]interface{}{
			"type": m.Type, "path": m.Path, "sha256": m.SHA256,
		})
	}
	return map[string]interface{}{
		"schema_id":      schemaID,
		"schema_version": version,
		"day_utc":        in.Day,
		"produced_utc":   artifacts.ProducedUTC(in.Day),
		"producer":       producerFields(v.producer),
		"status":         status,
		"reason_codes":   []string{},
		"input_manifest": entries,
	}
}

func (v *Validator) attemptPath(in *Inputs, out *Outcome, artifact string) string {
	sub := nonEmpty(out.SubmissionID, "unidentified")
	return artifacts.DayPath(SubmissionsFamily, in.Day, sub+"/"+artifact)
}

func (v *Validator) record(ctx context.Context, out *Outcome) {
	//nolint:errcheck // audit failures never alter the terminal state
	v.auditor.Record(ctx, audit.EventBoundary, "evaluate", string(out.Boundary), "", map[string]interface{}{
		"state":         string(out.State),
		"submission_id": out.SubmissionID,
		"reason_codes":  out.ReasonCodes(),
	})
}

// --- small helpers ---

func producerFields(p artifacts.Producer) map[string]interface{} {
	return map[string]interface{}{"repo": p.Repo, "git_sha": p.GitSHA, "module": p.Module}
}

// absentOrHash hashes a consumed input for the veto inputs block. Absent
// inputs record null; a present input that cannot be hashed is an integrity
// error and escalates, never a silent null.
func absentOrHash(fields map[string]interface{}) (interface{}, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	h, err := inputHash(fields)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func uniqueCodes(violations []Violation) []string {
	seen := make(map[string]bool, len(violations))
	codes := make([]string, 0, len(violations))
	for _, viol := range violations {
		if !seen[viol.Code] {
			seen[viol.Code] = true
			codes = append(codes, viol.Code)
		}
	}
	return codes
}

func pointersOrNone(pointers []string) []interface{} {
	if len(pointers) == 0 {
		return []interface{}{"<none>"}
	}
	out := make([]interface{}, 0, len(pointers))
	for _, p := range pointers {
		out = append(out, p)
	}
	return out
}

func pointerOrDefault(pointers []string, i int) string {
	if i < len(pointers) {
		return pointers[i]
	}
	return "<inline>"
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
