package id

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ParseUnits converts a human decimal string into token base units.
// Inputs with more fractional digits than the token carries are rejected.
func ParseUnits(decimal string, decimals int) (*big.Int, error) {
	clean := strings.TrimSpace(decimal)
	if clean == "" {
		return nil, clierr.New(clierr.CodeValidation, "amount is required")
	}
	if decimals < 0 {
		return nil, clierr.New(clierr.CodeValidation, "decimals must be >= 0")
	}
	if strings.HasPrefix(clean, ".") {
		clean = "0" + clean
	}
	if !decimalPattern.MatchString(clean) {
		return nil, clierr.New(clierr.CodeValidation, "amount must be a non-negative decimal like 1.23")
	}
	base, err := decimalToBaseUnits(clean, decimals)
	if err != nil {
		return nil, err
	}
	out, ok := new(big.Int).SetString(base, 10)
	if !ok {
		return nil, clierr.New(clierr.CodeValidation, "invalid decimal amount")
	}
	return out, nil
}

// ParseUnitsMax is ParseUnits bounded by max (inclusive). A nil max disables the bound.
func ParseUnitsMax(decimal string, decimals int, max *big.Int) (*big.Int, error) {
	v, err := ParseUnits(decimal, decimals)
	if err != nil {
		return nil, err
	}
	if max != nil && v.Cmp(max) > 0 {
		return nil, clierr.New(clierr.CodeValidation, fmt.Sprintf("amount must not exceed %s", FormatUnits(max, decimals)))
	}
	return v, nil
}

// FormatUnits renders base units as a trimmed decimal string.
func FormatUnits(v *big.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	neg := v.Sign() < 0
	s := formatDecimal(new(big.Int).Abs(v).String(), decimals)
	if neg {
		return "-" + s
	}
	return s
}

func formatDecimal(baseUnits string, decimals int) string {
	n := new(big.Int)
	n.SetString(baseUnits, 10)
	if decimals <= 0 {
		return n.String()
	}

	s := n.String()
	if len(s) <= decimals {
		pad := strings.Repeat("0", decimals-len(s)+1)
		s = pad + s
	}
	intPart := s[:len(s)-decimals]
	fracPart := s[len(s)-decimals:]
	fracPart = strings.TrimRight(fracPart, "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}

func decimalToBaseUnits(decimal string, decimals int) (string, error) {
	parts := strings.SplitN(decimal, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	fracPart = strings.TrimRight(fracPart, "0")
	if len(fracPart) > decimals {
		return "", clierr.New(clierr.CodeValidation, fmt.Sprintf("decimal precision exceeds token decimals (%d)", decimals))
	}

	fracPart = fracPart + strings.Repeat("0", decimals-len(fracPart))
	combined := strings.TrimLeft(intPart+fracPart, "0")
	if combined == "" {
		return "0", nil
	}
	return combined, nil
}

// NormalizeDecimal trims redundant zeros from a decimal string.
func NormalizeDecimal(v string) string {
	if !strings.Contains(v, ".") {
		out := strings.TrimLeft(v, "0")
		if out == "" {
			return "0"
		}
		return out
	}
	parts := strings.SplitN(v, ".", 2)
	intPart := strings.TrimLeft(parts[0], "0")
	if intPart == "" {
		intPart = "0"
	}
	fracPart := strings.TrimRight(parts[1], "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}
