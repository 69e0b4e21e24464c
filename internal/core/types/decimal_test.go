package types

import (
	"encoding/json"
	"testing"
)

func TestQuantityParse(t *testing.T) {
	cases := []struct {
		in   string
		want Quantity
		err  bool
	}{
		{"0", 0, false},
		{"1", 10_000, false},
		{"2.5", 25_000, false},
		{"0.0001", 1, false},
		{"-3.25", -32_500, false},
		{"+7", 70_000, false},
		{"12.34567", 123_456, false}, // extra digits truncated
		{".5", 5_000, false},
		{"", 0, true},
		{"abc", 0, true},
	}

	for _, tc := range cases {
		got, err := NewQuantityFromString(tc.in)
		if tc.err {
			if err == nil {
				t.Errorf("parse %q: expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parse %q: unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parse %q: got %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestQuantityString(t *testing.T) {
	cases := []struct {
		in   Quantity
		want string
	}{
		{0, "0.0000"},
		{10_000, "1.0000"},
		{25_000, "2.5000"},
		{1, "0.0001"},
		{-32_500, "-3.2500"},
	}

	for _, tc := range cases {
		if got := tc.in.String(); got != tc.want {
			t.Errorf("String(%d): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestQuantityJSON(t *testing.T) {
	// Marshals as a plain number with four fractional digits.
	data, err := json.Marshal(NewQuantityFromFloat64(2.5))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "2.5000" {
		t.Errorf("marshal: got %s, want 2.5000", data)
	}

	// Round-trips through both number and string forms.
	for _, raw := range []string{"2.5000", `"2.5"`, "2.5"} {
		var q Quantity
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if q != 25_000 {
			t.Errorf("unmarshal %s: got %d, want 25000", raw, q)
		}
	}

	var q Quantity
	if err := json.Unmarshal([]byte("null"), &q); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if q != 0 {
		t.Errorf("unmarshal null: got %d, want 0", q)
	}
}

func TestQuantityMinNegAbs(t *testing.T) {
	a := NewQuantityFromFloat64(3)
	b := NewQuantityFromFloat64(5)
	if a.Min(b) != a || b.Min(a) != a {
		t.Error("Min should return the smaller quantity")
	}
	if a.Neg() != -a {
		t.Error("Neg should flip the sign")
	}
	if a.Neg().Abs() != a {
		t.Error("Abs of a negated quantity should restore it")
	}
}

func TestQuantityFloat64RoundTrip(t *testing.T) {
	for _, v := range []float64{0, 1, 2.5, 0.0001, 1234.5678} {
		q := NewQuantityFromFloat64(v)
		if q.Float64() != v {
			t.Errorf("round trip %v: got %v", v, q.Float64())
		}
	}
}
