package artifacts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/marrow-labs/truthspine/pkg/canonicalize"
)

// SelfHashField is the envelope field carrying the artifact's own canonical
// hash, computed with the field nulled.
const SelfHashField = "self_hash"

// ErrEnvelopeInvalid marks an artifact that is missing or violating the
// mandatory envelope fields.
var ErrEnvelopeInvalid = errors.New("artifacts: envelope invalid")

// ErrBadDayKey marks a malformed day key.
var ErrBadDayKey = errors.New("artifacts: bad day key (expected YYYY-MM-DD)")

// Producer identifies the code that produced an artifact.
type Producer struct {
	Repo   string `json:"repo"`
	GitSHA string `json:"git_sha"`
	Module string `json:"module"`
}

// ManifestEntry records one consumed input and its content hash.
type ManifestEntry struct {
	Type   string `json:"type"`
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// envelopeSchema is the normative envelope contract every JSON truth
// artifact must satisfy.
const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": [
    "schema_id", "schema_version", "day_utc", "produced_utc",
    "producer", "status", "reason_codes", "input_manifest", "self_hash"
  ],
  "properties": {
    "schema_id": {"type": "string", "minLength": 1},
    "schema_version": {"type": "string", "pattern": "^v[0-9]+$"},
    "day_utc": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
    "produced_utc": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}T[0-9]{2}:[0-9]{2}:[0-9]{2}Z$"},
    "producer": {
      "type": "object",
      "required": ["repo", "git_sha", "module"],
      "properties": {
        "repo": {"type": "string", "minLength": 1},
        "git_sha": {"type": "string"},
        "module": {"type": "string", "minLength": 1}
      }
    },
    "status": {"type": "string", "minLength": 1},
    "reason_codes": {"type": "array", "items": {"type": "string"}},
    "input_manifest": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "path", "sha256"],
        "properties": {
          "type": {"type": "string", "minLength": 1},
          "path": {"type": "string", "minLength": 1},
          "sha256": {"type": "string", "pattern": "^[0-9a-f]{64}$"}
        }
      }
    },
    "self_hash": {"type": ["string", "null"], "pattern": "^[0-9a-f]{64}$"}
  }
}`

var compiledEnvelope = mustCompileEnvelope()

func mustCompileEnvelope() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("envelope.schema.json", strings.NewReader(envelopeSchema)); err != nil {
		panic(err)
	}
	return c.MustCompile("envelope.schema.json")
}

// ValidateDayKey enforces the YYYY-MM-DD day key format.
func ValidateDayKey(day string) error {
	if len(day) != 10 || day[4] != '-' || day[7] != '-' {
		return fmt.Errorf("%w: %q", ErrBadDayKey, day)
	}
	for _, i := range []int{0, 1, 2, 3, 5, 6, 8, 9} {
		if day[i] < '0' || day[i] > '9' {
			return fmt.Errorf("%w: %q", ErrBadDayKey, day)
		}
	}
	return nil
}

// ProducedUTC derives the produced_utc timestamp from the day key. Wall
// clock time never appears in truth artifacts.
func ProducedUTC(day string) string {
	return day + "T23:59:59Z"
}

// Seal finalizes a truth artifact: sorts reason_codes, validates the
// envelope contract, injects the self hash, and returns the canonical bytes
// with a single trailing newline plus the hash of those bytes.
func Seal(record map[string]interface{}) ([]byte, string, error) {
	if rcs, ok := record["reason_codes"].([]string); ok {
		// Empty must stay a JSON array, never null.
		sorted := make([]string, 0, len(rcs))
		sorted = append(sorted, rcs...)
		sort.Strings(sorted)
		record["reason_codes"] = sorted
	}
	if rcs, ok := record["reason_codes"].([]interface{}); ok {
		sorted := make([]string, 0, len(rcs))
		for _, rc := range rcs {
			s, ok := rc.(string)
			if !ok {
				return nil, "", fmt.Errorf("%w: non-string reason code", ErrEnvelopeInvalid)
			}
			sorted = append(sorted, s)
		}
		sort.Strings(sorted)
		record["reason_codes"] = sorted
	}

	if _, present := record[SelfHashField]; !present {
		record[SelfHashField] = nil
	}

	selfHash, err := canonicalize.SelfHash(record, SelfHashField)
	if err != nil {
		return nil, "", err
	}
	record[SelfHashField] = selfHash

	if err := validateEnvelope(record); err != nil {
		return nil, "", err
	}

	canonical, err := canonicalize.Canonicalize(record)
	if err != nil {
		return nil, "", err
	}
	payload := append(canonical, '\n')
	return payload, canonicalize.HashBytes(payload), nil
}

// VerifySealed re-derives the self hash of sealed artifact bytes and
// returns the decoded record. A mismatch or envelope violation is an error.
func VerifySealed(data []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var record map[string]interface{}
	if err := dec.Decode(&record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelopeInvalid, err)
	}
	if err := validateEnvelope(record); err != nil {
		return nil, err
	}

	recorded, _ := record[SelfHashField].(string)
	if recorded == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrEnvelopeInvalid, SelfHashField)
	}
	want, err := canonicalize.SelfHash(record, SelfHashField)
	if err != nil {
		return nil, err
	}
	if want != recorded {
		return nil, fmt.Errorf("%w: self hash mismatch: recorded=%s computed=%s", ErrEnvelopeInvalid, recorded, want)
	}
	return record, nil
}

func validateEnvelope(record map[string]interface{}) error {
	// jsonschema validates plain-JSON values; round-trip to drop json.Number.
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEnvelopeInvalid, err)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("%w: %v", ErrEnvelopeInvalid, err)
	}
	if err := compiledEnvelope.Validate(generic); err != nil {
		return fmt.Errorf("%w: %v", ErrEnvelopeInvalid, err)
	}
	return nil
}
