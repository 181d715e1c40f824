package registry

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var parsedABIs sync.Map

// Parsed returns the parsed form of one of the ABI constants in this
// package. Results are memoized; a malformed constant panics.
func Parsed(raw string) abi.ABI {
	if v, ok := parsedABIs.Load(raw); ok {
		return v.(abi.ABI)
	}
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	parsedABIs.Store(raw, parsed)
	return parsed
}
