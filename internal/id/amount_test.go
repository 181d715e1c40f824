package id

import (
	"math/big"
	"testing"
)

func TestParseUnitsDecimal(t *testing.T) {
	v, err := ParseUnits("1.25", 6)
	if err != nil {
		t.Fatalf("ParseUnits failed: %v", err)
	}
	if v.String() != "1250000" {
		t.Fatalf("unexpected base units: %s", v)
	}
	v, err = ParseUnits(".5", 18)
	if err != nil {
		t.Fatalf("ParseUnits(.5) failed: %v", err)
	}
	if v.String() != "500000000000000000" {
		t.Fatalf("unexpected base units: %s", v)
	}
}

func TestParseUnitsValidation(t *testing.T) {
	for _, in := range []string{"", "-1", "1e5", "abc", "1.1234567"} {
		if _, err := ParseUnits(in, 6); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
	if _, err := ParseUnitsMax("2", 6, big.NewInt(1_000_000)); err == nil {
		t.Fatal("expected max bound error")
	}
	if _, err := ParseUnitsMax("1", 6, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("unexpected error at bound: %v", err)
	}
}

func TestFormatUnits(t *testing.T) {
	cases := []struct {
		in   string
		dec  int
		want string
	}{
		{"0", 6, "0"},
		{"1250000", 6, "1.25"},
		{"1", 18, "0.000000000000000001"},
		{"42", 0, "42"},
		{"-1500000", 6, "-1.5"},
	}
	for _, tc := range cases {
		n, _ := new(big.Int).SetString(tc.in, 10)
		if got := FormatUnits(n, tc.dec); got != tc.want {
			t.Fatalf("FormatUnits(%s,%d) = %s, want %s", tc.in, tc.dec, got, tc.want)
		}
	}
	if got := NormalizeDecimal("001.2300"); got != "1.23" {
		t.Fatalf("unexpected normalize: %s", got)
	}
}
