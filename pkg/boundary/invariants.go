package boundary

import (
	"fmt"
	"time"

	"github.com/marrow-labs/truthspine/pkg/artifacts"
	"github.com/marrow-labs/truthspine/pkg/canonicalize"
	"github.com/marrow-labs/truthspine/pkg/fixedpoint"
)

// Inputs carries everything a boundary evaluation may consume. All times
// are injected by the caller; the validator never reads the wall clock.
type Inputs struct {
	Day      string
	EvalTime string // ISO-8601 Z, the deterministic evaluation instant
	TickSize string // decimal string, required for price determinism

	Intent      map[string]interface{}
	Snapshot    map[string]interface{}
	Certificate map[string]interface{}

	// Pointers are evidence file paths recorded on vetoes for audit.
	Pointers []string
}

// Invariant is one declarative check in a boundary's invariant set.
// Check returns nil when the invariant holds.
type Invariant struct {
	Code     string
	Category Category
	Check    func(in *Inputs) *Violation
}

func violation(code string, cat Category, format string, args ...interface{}) *Violation {
	return &Violation{Code: code, Category: cat, Detail: fmt.Sprintf(format, args...)}
}

// IntentInvariants is the invariant set for the INTENT checkpoint.
func IntentInvariants() []Invariant {
	return []Invariant{
		{
			Code:     ReasonBadDayKey,
			Category: CategoryHardFail,
			Check: func(in *Inputs) *Violation {
				if err := artifacts.ValidateDayKey(in.Day); err != nil {
					return violation(ReasonBadDayKey, CategoryHardFail, "%v", err)
				}
				return nil
			},
		},
		{
			Code:     ReasonEvalTimeInvalid,
			Category: CategoryHardFail,
			Check: func(in *Inputs) *Violation {
				if _, err := parseUTCZ(in.EvalTime); err != nil {
					return violation(ReasonEvalTimeInvalid, CategoryHardFail, "%v", err)
				}
				return nil
			},
		},
		{
			Code:     ReasonMissingRequiredIntent,
			Category: CategoryVeto,
			Check: func(in *Inputs) *Violation {
				if len(in.Intent) == 0 {
					return violation(ReasonMissingRequiredIntent, CategoryVeto, "intent input absent")
				}
				return nil
			},
		},
		{
			Code:     ReasonDefinedRiskRequired,
			Category: CategoryVeto,
			Check: func(in *Inputs) *Violation {
				strategy, _ := in.Intent["strategy"].(map[string]interface{})
				if strategy == nil {
					return violation(ReasonDefinedRiskRequired, CategoryVeto, "intent.strategy absent")
				}
				if structure, _ := strategy["structure"].(string); structure != "VERTICAL_SPREAD" {
					return violation(ReasonDefinedRiskRequired, CategoryVeto,
						"only fully defined-risk structures are eligible, got %q", structure)
				}
				risk, _ := in.Intent["risk_proof"].(map[string]interface{})
				if risk == nil {
					return violation(ReasonDefinedRiskRequired, CategoryVeto, "intent.risk_proof absent")
				}
				if maxLoss, _ := risk["max_loss_usd"].(string); maxLoss == "" {
					return violation(ReasonDefinedRiskRequired, CategoryVeto, "risk_proof.max_loss_usd absent")
				}
				return nil
			},
		},
		{
			Code:     ReasonExitPolicyRequired,
			Category: CategoryVeto,
			Check: func(in *Inputs) *Violation {
				if exit, _ := in.Intent["exit_policy"].(map[string]interface{}); len(exit) == 0 {
					return violation(ReasonExitPolicyRequired, CategoryVeto, "intent.exit_policy absent")
				}
				return nil
			},
		},
	}
}

// MappingInvariants re-checks every INTENT invariant and adds the
// snapshot/freshness/price-determinism rules of the MAPPING checkpoint.
func MappingInvariants() []Invariant {
	set := IntentInvariants()
	set = append(set,
		Invariant{
			Code:     ReasonMissingRequiredSnapshot,
			Category: CategoryVeto,
			Check: func(in *Inputs) *Violation {
				if len(in.Snapshot) == 0 {
					return violation(ReasonMissingRequiredSnapshot, CategoryVeto, "chain snapshot input absent")
				}
				return nil
			},
		},
		Invariant{
			Code:     ReasonMissingRequiredCert,
			Category: CategoryVeto,
			Check: func(in *Inputs) *Violation {
				if len(in.Certificate) == 0 {
					return violation(ReasonMissingRequiredCert, CategoryVeto, "freshness certificate input absent")
				}
				return nil
			},
		},
		Invariant{
			Code:     ReasonHashMismatch,
			Category: CategoryHardFail,
			Check: func(in *Inputs) *Violation {
				if len(in.Snapshot) == 0 || len(in.Certificate) == 0 {
					return nil // missing inputs are vetoed above
				}
				snapHash, err := inputHash(in.Snapshot)
				if err != nil {
					return violation(ReasonCanonicalization, CategoryHardFail, "snapshot: %v", err)
				}
				recorded, _ := in.Certificate["snapshot_hash"].(string)
				if recorded != snapHash {
					return violation(ReasonHashMismatch, CategoryHardFail,
						"freshness certificate snapshot_hash=%s does not bind snapshot hash=%s", recorded, snapHash)
				}
				return nil
			},
		},
		Invariant{
			Code:     ReasonFreshnessCertExpired,
			Category: CategoryVeto,
			Check: func(in *Inputs) *Violation {
				if len(in.Certificate) == 0 {
					return nil
				}
				now, err := parseUTCZ(in.EvalTime)
				if err != nil {
					return nil // already hard-failed by the eval-time invariant
				}
				from, _ := in.Certificate["valid_from_utc"].(string)
				until, _ := in.Certificate["valid_until_utc"].(string)
				validFrom, err := parseUTCZ(from)
				if err != nil {
					return violation(ReasonFreshnessCertExpired, CategoryVeto, "valid_from_utc: %v", err)
				}
				validUntil, err := parseUTCZ(until)
				if err != nil {
					return violation(ReasonFreshnessCertExpired, CategoryVeto, "valid_until_utc: %v", err)
				}
				if now.Before(validFrom) || now.After(validUntil) {
					return violation(ReasonFreshnessCertExpired, CategoryVeto,
						"certificate window %s..%s does not contain eval time %s", from, until, in.EvalTime)
				}
				return nil
			},
		},
		Invariant{
			Code:     ReasonPriceDeterminism,
			Category: CategoryVeto,
			Check: func(in *Inputs) *Violation {
				if in.TickSize == "" {
					return violation(ReasonPriceDeterminism, CategoryVeto,
						"tick_size is required for deterministic limit price rounding")
				}
				tick, err := fixedpoint.Parse(in.TickSize)
				if err != nil {
					return violation(ReasonPriceDeterminism, CategoryVeto, "tick_size: %v", err)
				}
				if tick <= 0 {
					return violation(ReasonPriceDeterminism, CategoryVeto, "tick_size must be > 0, got %s", in.TickSize)
				}
				return nil
			},
		},
	)
	return set
}

// SubmitInvariants re-checks every invariant already passed at INTENT and
// MAPPING. Prior outcomes are never trusted blindly.
func SubmitInvariants() []Invariant {
	return MappingInvariants()
}

// InvariantSet returns the invariant set for a boundary.
func InvariantSet(b Boundary) ([]Invariant, error) {
	switch b {
	case Intent:
		return IntentInvariants(), nil
	case Mapping:
		return MappingInvariants(), nil
	case Submit:
		return SubmitInvariants(), nil
	default:
		return nil, fmt.Errorf("boundary: unknown boundary %q", b)
	}
}

// inputHash computes the canonical content hash of an input artifact. When
// the artifact carries a self_hash field the hash is computed with that
// field nulled, matching how the artifact was sealed.
func inputHash(fields map[string]interface{}) (string, error) {
	if _, ok := fields[artifacts.SelfHashField]; ok {
		return canonicalize.SelfHash(fields, artifacts.SelfHashField)
	}
	return canonicalize.Hash(fields)
}

func parseUTCZ(ts string) (time.Time, error) {
	if len(ts) == 0 || ts[len(ts)-1] != 'Z' {
		return time.Time{}, fmt.Errorf("timestamp must be Z-suffix UTC ISO-8601: %q", ts)
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %v", ts, err)
	}
	return t.UTC(), nil
}
