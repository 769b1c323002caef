package canonicalize

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestCanonicalize_Sorting(t *testing.T) {
	input := map[string]interface{}{
		"c": 3,
		"a": 1,
		"b": 2,
	}

	expected := `{"a":1,"b":2,"c":3}`

	b, err := Canonicalize(input)
	if err != nil {
		t.Fatalf("Canonicalize failed: %v", err)
	}
	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestCanonicalize_RecursiveSorting(t *testing.T) {
	input := map[string]interface{}{
		"z": map[string]interface{}{
			"y": "foo",
			"x": "bar",
		},
		"a": 1,
	}

	expected := `{"a":1,"z":{"x":"bar","y":"foo"}}`

	b, err := Canonicalize(input)
	if err != nil {
		t.Fatalf("Canonicalize failed: %v", err)
	}
	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestCanonicalize_NoHTMLEscaping(t *testing.T) {
	input := map[string]string{
		"html": "<script>alert('xss')</script> &",
	}

	// RFC 8785 requires raw characters, not < escapes.
	expected := `{"html":"<script>alert('xss')</script> &"}`

	b, err := Canonicalize(input)
	if err != nil {
		t.Fatalf("Canonicalize failed: %v", err)
	}
	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestCanonicalize_RejectsFloats(t *testing.T) {
	cases := map[string]interface{}{
		"bare float":   map[string]interface{}{"x": 1.5},
		"nested float": map[string]interface{}{"a": map[string]interface{}{"b": []interface{}{0.1}}},
		"nan":          map[string]interface{}{"x": math.NaN()},
		"inf":          map[string]interface{}{"x": math.Inf(1)},
		"struct field": struct{ F float64 }{F: 2.0},
	}
	for name, v := range cases {
		if _, err := Canonicalize(v); !errors.Is(err, ErrSerialization) {
			t.Errorf("%s: expected ErrSerialization, got %v", name, err)
		}
	}
}

func TestCanonicalize_DecimalStringsSurviveExactly(t *testing.T) {
	input := map[string]interface{}{
		"drawdown_pct":    "-0.150000",
		"risk_multiplier": "1.00",
	}
	expected := `{"drawdown_pct":"-0.150000","risk_multiplier":"1.00"}`

	b, err := Canonicalize(input)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestHash_Stability(t *testing.T) {
	// Two inputs that are semantically identical but constructed differently.
	v1 := map[string]interface{}{"a": 1, "b": 2}

	type S struct {
		B int `json:"b"`
		A int `json:"a"`
	}
	v2 := S{A: 1, B: 2}

	h1, err := Hash(v1)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := Hash(v2)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("Hash mismatch for semantically identical inputs: %s != %s", h1, h2)
	}

	// Repeated calls are stable.
	h3, err := Hash(v1)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h3 {
		t.Errorf("Hash not stable across calls: %s != %s", h1, h3)
	}
}

func TestSelfHash_NullsOwnField(t *testing.T) {
	rec := map[string]interface{}{
		"schema_id": "veto_record",
		"self_hash": "placeholder-must-not-matter",
	}
	h1, err := SelfHash(rec, "self_hash")
	if err != nil {
		t.Fatal(err)
	}

	rec["self_hash"] = nil
	want, err := Hash(rec)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != want {
		t.Errorf("SelfHash must hash with the field nulled: %s != %s", h1, want)
	}

	// Identical logical records with different recorded hashes agree.
	rec["self_hash"] = "another-placeholder"
	h2, err := SelfHash(rec, "self_hash")
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("SelfHash depends on the recorded hash value: %s != %s", h1, h2)
	}
}

func TestSelfHash_MissingFieldFails(t *testing.T) {
	if _, err := SelfHash(map[string]interface{}{"a": 1}, "self_hash"); !errors.Is(err, ErrSerialization) {
		t.Fatalf("expected ErrSerialization, got %v", err)
	}
}

func TestToObject_TopLevelMustBeObject(t *testing.T) {
	if _, err := ToObject([]int{1, 2, 3}); !errors.Is(err, ErrSerialization) {
		t.Fatalf("expected ErrSerialization, got %v", err)
	}
}

func TestCanonicalize_NumberTypes(t *testing.T) {
	input := map[string]interface{}{
		"count": json.Number("42"),
	}
	expected := `{"count":42}`

	b, err := Canonicalize(input)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}
