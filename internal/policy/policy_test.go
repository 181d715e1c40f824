package policy

import (
	"testing"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
)

func TestCheckCommandAllowed(t *testing.T) {
	if err := CheckCommandAllowed(nil, "vault view"); err != nil {
		t.Fatalf("unexpected error with empty allowlist: %v", err)
	}
	if err := CheckCommandAllowed([]string{"Vault  View"}, "vault view"); err != nil {
		t.Fatalf("expected command to be allowed: %v", err)
	}
	if err := CheckCommandAllowed([]string{"feeds list"}, "console"); !clierr.Is(err, clierr.CodeBlocked) {
		t.Fatalf("expected blocked error, got %v", err)
	}
}

func TestCheckWriteAllowed(t *testing.T) {
	if err := CheckWriteAllowed(false, "Add liquidity"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := CheckWriteAllowed(true, "Add liquidity")
	if !clierr.Is(err, clierr.CodeBlocked) || clierr.ExitCode(err) != 16 {
		t.Fatalf("expected blocked error with exit code 16, got %v", err)
	}
}
