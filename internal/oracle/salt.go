package oracle

import (
	"context"
	"crypto/rand"
	"fmt"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
)

// DefaultSaltAttempts bounds RetryWithFreshSalt when the caller passes zero.
const DefaultSaltAttempts = 10

// DeployFunc deploys with the given salt.
type DeployFunc func(ctx context.Context, salt [32]byte) (Result, error)

// RandomSalt draws a 32-byte salt from crypto/rand.
func RandomSalt() ([32]byte, error) {
	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return salt, clierr.Wrap(clierr.CodeInternal, "draw salt", err)
	}
	return salt, nil
}

// RetryWithFreshSalt calls deploy with a new random salt until it succeeds,
// a validation error is returned or the attempts run out. It is meant to
// run after a failure with the default zero salt, once the operator agreed.
func RetryWithFreshSalt(ctx context.Context, attempts int, deploy DeployFunc) (Result, error) {
	if attempts <= 0 {
		attempts = DefaultSaltAttempts
	}
	var last error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, clierr.Wrap(clierr.CodeActionTimeout, "salt retry interrupted", err)
		}
		salt, err := RandomSalt()
		if err != nil {
			return Result{}, err
		}
		res, err := deploy(ctx, salt)
		if err == nil {
			return res, nil
		}
		if clierr.Is(err, clierr.CodeValidation) {
			return Result{}, err
		}
		last = err
	}
	return Result{}, fmt.Errorf("deploy failed after %d salts: %w", attempts, last)
}
