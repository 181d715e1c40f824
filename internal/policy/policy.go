package policy

import (
	"fmt"
	"strings"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
)

// CheckCommandAllowed enforces the --enable-commands allowlist. An empty
// allowlist allows everything.
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	normPath := normalize(commandPath)
	for _, allowed := range allowlist {
		if normalize(allowed) == normPath {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, fmt.Sprintf("command %q blocked by --enable-commands policy", normPath))
}

// CheckWriteAllowed blocks transaction-sending flows in read-only mode.
func CheckWriteAllowed(readOnly bool, action string) error {
	if !readOnly {
		return nil
	}
	return clierr.New(clierr.CodeBlocked, fmt.Sprintf("%s sends transactions and is blocked in read-only mode", normalize(action)))
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
