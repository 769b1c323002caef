package evidence

import (
	"errors"
	"fmt"
)

// ChainMismatchError reports the first broken link found during chain
// verification, so an audit can pinpoint exactly where tampering or stale
// derivation occurred.
type ChainMismatchError struct {
	Index int    // position of the broken record in the chain
	Kind  Kind   // its variant
	Field string // "self_hash" or "upstream_hash"
	Want  string
	Got   string
}

func (e *ChainMismatchError) Error() string {
	return fmt.Sprintf("evidence: chain mismatch at index %d (%s) field %s: want %s got %s",
		e.Index, e.Kind, e.Field, e.Want, e.Got)
}

// ErrChainMismatch is matched by errors.Is against ChainMismatchError.
var ErrChainMismatch = errors.New("evidence: chain mismatch")

func (e *ChainMismatchError) Unwrap() error { return ErrChainMismatch }

// ErrEmptyChain is returned for a chain with no records.
var ErrEmptyChain = errors.New("evidence: empty chain")

// VerifyChain checks a linear submission chain: records[0] must be the
// chain root; every self-hash is recomputed from canonical bytes, and every
// upstream pointer must equal the predecessor's canonical self-hash. The
// first divergence is returned.
func VerifyChain(records []*Record) error {
	if len(records) == 0 {
		return ErrEmptyChain
	}
	if !records[0].Kind.IsChainRoot() {
		return fmt.Errorf("%w: chain must start at %s, got %s", ErrMalformedRecord, KindIntent, records[0].Kind)
	}

	for i, rec := range records {
		computed, err := rec.ComputeSelfHash()
		if err != nil {
			return fmt.Errorf("evidence: recompute self hash at index %d (%s): %w", i, rec.Kind, err)
		}
		if computed != rec.SelfHash {
			return &ChainMismatchError{Index: i, Kind: rec.Kind, Field: SelfHashField, Want: computed, Got: rec.SelfHash}
		}

		if i == 0 {
			continue
		}
		if rec.Kind.IsChainRoot() {
			return fmt.Errorf("%w: chain root %s at non-zero index %d", ErrMalformedRecord, rec.Kind, i)
		}
		// The predecessor's recorded hash was just verified against its
		// canonical bytes, so binding against it is binding against content.
		if rec.UpstreamHash != records[i-1].SelfHash {
			return &ChainMismatchError{Index: i, Kind: rec.Kind, Field: UpstreamHashField, Want: records[i-1].SelfHash, Got: rec.UpstreamHash}
		}
	}
	return nil
}
