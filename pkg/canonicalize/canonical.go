// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// serialization and SHA-256 content hashing for truth artifacts.
//
// Determinism contract: two logically equal records canonicalize to
// byte-identical output regardless of construction order, host, or locale.
// Binary floating point is rejected everywhere; numeric values must be
// carried as fixed-precision decimal strings or json.Number.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/gowebpki/jcs"
)

// ErrSerialization marks a value that cannot be canonicalized: a float,
// NaN, or Infinity anywhere in the structure, or a non-JSON-encodable type.
var ErrSerialization = errors.New("canonicalize: value is not canonicalizable")

// Canonicalize returns the RFC 8785 canonical JSON form of v: UTF-8,
// keys sorted lexicographically, compact separators, no HTML escaping.
func Canonicalize(v interface{}) ([]byte, error) {
	if err := rejectFloats(reflect.ValueOf(v)); err != nil {
		return nil, err
	}

	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: pre-marshal failed: %v", ErrSerialization, err)
	}

	out, err := jcs.Transform(intermediate)
	if err != nil {
		return nil, fmt.Errorf("%w: jcs transform failed: %v", ErrSerialization, err)
	}
	return out, nil
}

// Hash returns the SHA-256 lowercase-hex digest of the canonical form of v.
func Hash(v interface{}) (string, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the SHA-256 digest of raw bytes as lowercase hex.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SelfHash computes the content hash of a record with its own hash field
// nulled: sha256(canonicalize(record with record[field] = null)).
// The record must encode to a top-level JSON object containing field.
func SelfHash(v interface{}, field string) (string, error) {
	m, err := ToObject(v)
	if err != nil {
		return "", err
	}
	if _, ok := m[field]; !ok {
		return "", fmt.Errorf("%w: record has no %q field", ErrSerialization, field)
	}
	m[field] = nil
	return Hash(m)
}

// ToObject converts a record to its generic JSON object form with all
// numbers preserved as json.Number. Top-level non-objects are rejected.
func ToObject(v interface{}) (map[string]interface{}, error) {
	if err := rejectFloats(reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: pre-marshal failed: %v", ErrSerialization, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("%w: intermediate decode failed: %v", ErrSerialization, err)
	}
	m, ok := generic.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: top-level value is not an object", ErrSerialization)
	}
	return m, nil
}

// rejectFloats walks a value and fails closed on any binary float, NaN, or
// Infinity. json.Number and decimal strings pass through untouched.
func rejectFloats(v reflect.Value) error {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: NaN or Infinity present", ErrSerialization)
		}
		return fmt.Errorf("%w: binary float present (use a decimal string)", ErrSerialization)
	case reflect.String:
		// json.Number is a string kind and is always acceptable.
		return nil
	case reflect.Map:
		for _, key := range v.MapKeys() {
			if err := rejectFloats(v.MapIndex(key)); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := rejectFloats(v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if err := rejectFloats(v.Field(i)); err != nil {
				return err
			}
		}
	case reflect.Ptr, reflect.Interface:
		if !v.IsNil() {
			return rejectFloats(v.Elem())
		}
	}
	return nil
}
