package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mangrovedao/vault-console/internal/id"
	"github.com/mangrovedao/vault-console/internal/registry"
)

// Token is ERC-20 metadata as read from chain.
type Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// Format renders a base-unit amount of the token as a decimal string.
func (t Token) Format(v *big.Int) string {
	return id.FormatUnits(v, int(t.Decimals))
}

// Parse converts a decimal string into the token's base units.
func (t Token) Parse(v string) (*big.Int, error) {
	return id.ParseUnits(v, int(t.Decimals))
}

func (t Token) String() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address.Hex()
}

func (c *Client) tokenKey(addr common.Address) string {
	return fmt.Sprintf("%d:%s", c.chainID, addr.Hex())
}

// Tokens reads decimals and symbol of each address, memoized for the session.
func (c *Client) Tokens(ctx context.Context, addrs ...common.Address) ([]Token, error) {
	out := make([]Token, len(addrs))
	var missing []int
	for i, addr := range addrs {
		if v, ok := c.tokens.Get(c.tokenKey(addr)); ok {
			out[i] = v.(Token)
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	calls := make([]Call, 0, 2*len(missing))
	for _, i := range missing {
		calls = append(calls,
			NewCall(addrs[i], registry.ERC20ABI, "decimals"),
			NewCall(addrs[i], registry.ERC20ABI, "symbol"),
		)
	}
	results, err := c.Aggregate(ctx, calls)
	if err != nil {
		return nil, err
	}
	for j, i := range missing {
		dec, err := Uint8(results[2*j], 0)
		if err != nil {
			return nil, err
		}
		sym, err := String(results[2*j+1], 0)
		if err != nil {
			return nil, err
		}
		tok := Token{Address: addrs[i], Symbol: sym, Decimals: dec}
		c.tokens.SetDefault(c.tokenKey(addrs[i]), tok)
		out[i] = tok
	}
	return out, nil
}

// Token reads the metadata of a single ERC-20.
func (c *Client) Token(ctx context.Context, addr common.Address) (Token, error) {
	toks, err := c.Tokens(ctx, addr)
	if err != nil {
		return Token{}, err
	}
	return toks[0], nil
}

// Balances reads balanceOf(owner) for each token in one batch.
func (c *Client) Balances(ctx context.Context, owner common.Address, tokens ...common.Address) ([]*big.Int, error) {
	calls := make([]Call, len(tokens))
	for i, tok := range tokens {
		calls[i] = NewCall(tok, registry.ERC20ABI, "balanceOf", owner)
	}
	results, err := c.Aggregate(ctx, calls)
	if err != nil {
		return nil, err
	}
	out := make([]*big.Int, len(results))
	for i, r := range results {
		v, err := Big(r, 0)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
