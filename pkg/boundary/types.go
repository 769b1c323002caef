// Package boundary implements the per-boundary invariant-evaluation state
// machine. Each submission attempt passes through the INTENT, MAPPING, and
// SUBMIT checkpoints; every checkpoint evaluates its full invariant set and
// terminates in exactly one of ALLOWED, VETOED, or HARD_FAILED, emitting
// exactly one continuation record or one veto, never both.
package boundary

import "fmt"

// Boundary is a checkpoint identifier.
type Boundary string

const (
	Intent  Boundary = "INTENT"
	Mapping Boundary = "MAPPING"
	Submit  Boundary = "SUBMIT"
)

// State is a validator state. PENDING exists only while an evaluation is
// in flight; the terminal states are the only observable results.
type State string

const (
	Pending    State = "PENDING"
	Allowed    State = "ALLOWED"
	Vetoed     State = "VETOED"
	HardFailed State = "HARD_FAILED"
)

// Category classifies a violation.
//
// VETO covers business-rule violations: recoverable by a later attempt,
// expressed as a normal terminal Veto record. HARD_FAIL covers structural
// and integrity violations (hash mismatch, canonicalization failure,
// non-deterministic selection, malformed veto, attempted overwrite):
// unsafe to continue, no downstream artifact is written.
type Category int

const (
	CategoryVeto Category = iota
	CategoryHardFail
)

func (c Category) String() string {
	if c == CategoryHardFail {
		return "HARD_FAIL"
	}
	return "VETO"
}

// Violation is one failed invariant.
type Violation struct {
	Code     string   `json:"code"`
	Category Category `json:"-"`
	Detail   string   `json:"detail"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s[%s]: %s", v.Code, v.Category, v.Detail)
}

// Stable reason codes. These identifiers are load-bearing for audits and
// MUST NOT change between releases.
const (
	ReasonMissingRequiredIntent   = "MISSING_REQUIRED_INTENT"
	ReasonMissingRequiredSnapshot = "MISSING_REQUIRED_SNAPSHOT"
	ReasonMissingRequiredCert     = "MISSING_REQUIRED_FRESHNESS_CERT"
	ReasonDefinedRiskRequired     = "DEFINED_RISK_REQUIRED"
	ReasonExitPolicyRequired      = "EXIT_POLICY_REQUIRED"
	ReasonFreshnessCertExpired    = "FRESHNESS_CERT_INVALID_OR_EXPIRED"
	ReasonPriceDeterminism        = "PRICE_DETERMINISM_FAILED"
	ReasonBadDayKey               = "DAY_KEY_INVALID"
	ReasonHashMismatch            = "UPSTREAM_HASH_MISMATCH"
	ReasonCanonicalization        = "CANONICALIZATION_FAILED"
	ReasonNondeterministicRule    = "NONDETERMINISTIC_SELECTION_RULE"
	ReasonAttemptedRewrite        = "ATTEMPTED_REWRITE"
	ReasonMalformedVeto           = "MALFORMED_VETO_RECORD"
	ReasonBindingNotPersisted     = "BINDING_NOT_PERSISTED"
	ReasonEvalTimeInvalid         = "EVAL_TIME_INVALID"
)
