// Package evidence defines the typed, hash-linked records that make up one
// submission attempt's evidence chain, and the verification that binds them.
package evidence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/marrow-labs/truthspine/pkg/canonicalize"
)

// Kind discriminates evidence record variants by schema_id.
type Kind string

const (
	KindIntent           Kind = "options_intent"
	KindSnapshot         Kind = "options_chain_snapshot"
	KindCertificate      Kind = "freshness_certificate"
	KindPlan             Kind = "order_plan"
	KindLedger           Kind = "mapping_ledger_record"
	KindBinding          Kind = "binding_record"
	KindSubmissionRecord Kind = "submission_record"
	KindLifecycleEvent   Kind = "lifecycle_event"
	KindVeto             Kind = "veto_record"
)

// SelfHashField is the envelope field carrying a record's own hash.
const SelfHashField = "self_hash"

// UpstreamHashField points at the canonical self-hash of the record's
// logical predecessor. Every record except the root Intent carries it.
const UpstreamHashField = "upstream_hash"

// ErrUnknownSchema marks a record whose schema_id is not a known variant.
// Unknown variants are rejected, never coerced.
var ErrUnknownSchema = errors.New("evidence: unknown schema_id")

// ErrMalformedRecord marks a record missing its discriminator or hashes.
var ErrMalformedRecord = errors.New("evidence: malformed record")

var knownKinds = map[Kind]bool{
	KindIntent:           true,
	KindSnapshot:         true,
	KindCertificate:      true,
	KindPlan:             true,
	KindLedger:           true,
	KindBinding:          true,
	KindSubmissionRecord: true,
	KindLifecycleEvent:   true,
	KindVeto:             true,
}

// IsChainRoot reports whether k is the root of a submission chain and thus
// carries no upstream hash.
func (k Kind) IsChainRoot() bool { return k == KindIntent }

// Record is one evidence artifact in generic form. Fields holds the full
// decoded object (numbers preserved as json.Number) including both hash
// fields; the typed accessors mirror the envelope discriminators.
type Record struct {
	Kind          Kind
	SchemaVersion string
	SelfHash      string
	UpstreamHash  string // empty on the chain root
	Fields        map[string]interface{}
}

// Decode parses raw artifact bytes into a Record, rejecting unknown
// variants and records without the mandatory hash fields.
func Decode(data []byte) (*Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return FromFields(fields)
}

// FromFields builds a Record from an already-decoded object.
func FromFields(fields map[string]interface{}) (*Record, error) {
	schemaID, _ := fields["schema_id"].(string)
	if schemaID == "" {
		return nil, fmt.Errorf("%w: missing schema_id", ErrMalformedRecord)
	}
	kind := Kind(schemaID)
	if !knownKinds[kind] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, schemaID)
	}

	version, _ := fields["schema_version"].(string)
	if version == "" {
		return nil, fmt.Errorf("%w: missing schema_version", ErrMalformedRecord)
	}

	selfHash, _ := fields[SelfHashField].(string)
	if selfHash == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedRecord, SelfHashField)
	}

	upstream, _ := fields[UpstreamHashField].(string)
	if kind.IsChainRoot() {
		if upstream != "" {
			return nil, fmt.Errorf("%w: chain root %s must not carry %s", ErrMalformedRecord, kind, UpstreamHashField)
		}
	} else if upstream == "" {
		return nil, fmt.Errorf("%w: %s requires %s", ErrMalformedRecord, kind, UpstreamHashField)
	}

	return &Record{
		Kind:          kind,
		SchemaVersion: version,
		SelfHash:      selfHash,
		UpstreamHash:  upstream,
		Fields:        fields,
	}, nil
}

// ComputeSelfHash recomputes the record's canonical self-hash (self_hash
// field nulled).
func (r *Record) ComputeSelfHash() (string, error) {
	return canonicalize.SelfHash(r.Fields, SelfHashField)
}
