package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/mangrovedao/vault-console/internal/chain"
	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/id"
	"github.com/mangrovedao/vault-console/internal/oracle"
	"github.com/mangrovedao/vault-console/internal/oracle/feeds"
	"github.com/mangrovedao/vault-console/internal/prompt"
	"github.com/mangrovedao/vault-console/internal/registry"
	"github.com/mangrovedao/vault-console/internal/vault"
)

const (
	feedChoices        = 10
	defaultDiaDecimals = 8
	maxVaultDecimals   = 36
)

// tokenPair is the market an oracle was deployed for; nil when the flow
// never asked (combiner oracles).
type tokenPair struct {
	Base  chain.Token
	Quote chain.Token
}

func (c *console) createVault(ctx context.Context, oracleAddr common.Address) error {
	return c.createVaultWith(ctx, oracleAddr, nil)
}

func (c *console) createVaultAndOracle(ctx context.Context) error {
	res, pair, err := c.deployOracleFor(ctx)
	if err != nil {
		return err
	}
	return c.createVaultWith(ctx, res.Address, pair)
}

func (c *console) deployOracle(ctx context.Context) (oracle.Result, error) {
	res, _, err := c.deployOracleFor(ctx)
	return res, err
}

func (c *console) askPair(ctx context.Context) (*tokenPair, error) {
	base, err := prompt.Address(c.p, "Base token", common.Address{})
	if err != nil {
		return nil, err
	}
	quote, err := prompt.Address(c.p, "Quote token", common.Address{})
	if err != nil {
		return nil, err
	}
	if base == quote {
		return nil, clierr.New(clierr.CodeValidation, "base and quote must differ")
	}
	rctx, cancel := c.s.readContext(ctx)
	defer cancel()
	tokens, err := c.ss.reader.Tokens(rctx, base, quote)
	if err != nil {
		return nil, err
	}
	c.printf("market %s/%s (%d and %d decimals)\n", tokens[0], tokens[1], tokens[0].Decimals, tokens[1].Decimals)
	return &tokenPair{Base: tokens[0], Quote: tokens[1]}, nil
}

func (c *console) createVaultWith(ctx context.Context, oracleAddr common.Address, pair *tokenPair) error {
	exec, err := c.executor("create vault")
	if err != nil {
		return err
	}
	entry := c.ss.entry
	seeders := entry.SeederNames()
	i, err := c.p.Select("Seeder", seeders)
	if err != nil {
		return err
	}
	if pair == nil {
		if pair, err = c.askPair(ctx); err != nil {
			return err
		}
	}
	if oracleAddr == (common.Address{}) {
		if oracleAddr, err = prompt.Address(c.p, "Oracle address", common.Address{}); err != nil {
			return err
		}
	}
	spacing, err := prompt.Int(c.p, "Tick spacing", 1, 1, math.MaxInt32)
	if err != nil {
		return err
	}
	name, err := prompt.Text(c.p, "Vault name", fmt.Sprintf("Mangrove %s/%s", pair.Base, pair.Quote))
	if err != nil {
		return err
	}
	symbol, err := prompt.Text(c.p, "Vault symbol", fmt.Sprintf("MGV-%s-%s", pair.Base, pair.Quote))
	if err != nil {
		return err
	}
	decimals, err := prompt.Int(c.p, "Share decimals", vault.DefaultDecimals, 0, maxVaultDecimals)
	if err != nil {
		return err
	}

	rctx, cancel := c.s.readContext(ctx)
	price, err := oracle.ReadPrice(rctx, c.ss.reader, oracleAddr, pair.Base.Address, pair.Quote.Address, big.NewInt(spacing))
	cancel()
	if err != nil {
		c.log.Warn("oracle price unavailable", zap.String("oracle", oracleAddr.Hex()), zap.Error(err))
	} else {
		c.printf("oracle price: %g %s per %s (tick %d)\n", price.Price, pair.Quote, pair.Base, price.Tick)
	}
	if err := c.confirm(fmt.Sprintf("Create %s with the %s seeder", symbol, seeders[i]), "vault creation"); err != nil {
		return err
	}
	created, err := vault.Create(ctx, exec, entry, vault.CreateArgs{
		Seeder:      entry.Seeders[seeders[i]],
		Base:        pair.Base.Address,
		Quote:       pair.Quote.Address,
		TickSpacing: big.NewInt(spacing),
		Decimals:    uint8(decimals),
		Name:        name,
		Symbol:      symbol,
		Oracle:      oracleAddr,
		Owner:       c.ss.account(),
	})
	if err != nil {
		return err
	}
	save, err := c.p.Confirm("Save this vault", true)
	if err != nil || !save {
		return err
	}
	return c.saveVault(ctx, created.Address, "")
}

func (c *console) deployOracleFor(ctx context.Context) (oracle.Result, *tokenPair, error) {
	exec, err := c.executor("deploy oracle")
	if err != nil {
		return oracle.Result{}, nil, err
	}
	families := c.ss.entry.Families()
	if len(families) == 0 {
		return oracle.Result{}, nil, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no oracle factory on %s", c.ss.chain.Name))
	}
	names := make([]string, len(families))
	for i, f := range families {
		names[i] = string(f)
	}
	i, err := c.p.Select("Oracle type", names)
	if err != nil {
		return oracle.Result{}, nil, err
	}

	var (
		args oracle.Args
		pair *tokenPair
	)
	switch families[i] {
	case registry.OracleCombinerV1:
		args, err = c.combinerArgs()
	default:
		if pair, err = c.askPair(ctx); err != nil {
			return oracle.Result{}, nil, err
		}
		args, err = c.feedArgs(ctx, families[i], *pair)
	}
	if err != nil {
		return oracle.Result{}, nil, err
	}
	if err := args.Validate(); err != nil {
		return oracle.Result{}, nil, err
	}

	d := oracle.NewDeployer(exec, c.ss.entry)
	if err := c.confirm(fmt.Sprintf("Deploy the %s oracle", args.Family()), "oracle deployment"); err != nil {
		return oracle.Result{}, nil, err
	}
	res, err := d.Deploy(ctx, args, [32]byte{})
	if err != nil {
		if clierr.Is(err, clierr.CodeValidation) {
			return res, nil, err
		}
		c.printf("deployment failed: %v\n", err)
		retry, perr := c.p.Confirm("Retry with a random salt", false)
		if perr != nil {
			return res, nil, perr
		}
		if !retry {
			return res, nil, err
		}
		res, err = oracle.RetryWithFreshSalt(ctx, oracle.DefaultSaltAttempts, func(ctx context.Context, salt [32]byte) (oracle.Result, error) {
			return d.Deploy(ctx, args, salt)
		})
		if err != nil {
			return res, nil, err
		}
	}
	if res.AlreadyDeployed {
		c.printf("oracle already deployed at %s\n", res.Address.Hex())
	} else {
		c.printf("oracle deployed at %s\n", res.Address.Hex())
	}
	return res, pair, nil
}

func (c *console) combinerArgs() (oracle.Args, error) {
	var a oracle.CombinerV1Args
	for i := range a.Oracles {
		addr, err := prompt.Address(c.p, fmt.Sprintf("Oracle %d (zero address to skip)", i+1), common.Address{})
		if err != nil {
			return nil, err
		}
		a.Oracles[i] = addr
	}
	return a, nil
}

// hopCount asks how many hops a side of the feed chain takes.
func (c *console) hopCount(side string) (int, error) {
	n, err := prompt.Int(c.p, fmt.Sprintf("Number of %s feeds", side), 1, 0, 2)
	return int(n), err
}

func (c *console) feedArgs(ctx context.Context, family registry.OracleFamily, pair tokenPair) (oracle.Args, error) {
	intermediary := uint8(c.s.settings.IntermediaryDecimals)
	nBase, err := c.hopCount("base")
	if err != nil {
		return nil, err
	}
	nQuote, err := c.hopCount("quote")
	if err != nil {
		return nil, err
	}

	if family == registry.OracleDiaV1 {
		base, quote := make([]oracle.DiaFeed, nBase), make([]oracle.DiaFeed, nQuote)
		for i := range base {
			if base[i], err = c.diaFeed(fmt.Sprintf("base feed %d", i+1)); err != nil {
				return nil, err
			}
		}
		for i := range quote {
			if quote[i], err = c.diaFeed(fmt.Sprintf("quote feed %d", i+1)); err != nil {
				return nil, err
			}
		}
		f, err := oracle.DiaChain(pair.Base.Decimals, pair.Quote.Decimals, intermediary, base, quote)
		if err != nil {
			return nil, err
		}
		v, err := c.vaultFeeds(ctx)
		if err != nil {
			return nil, err
		}
		return oracle.DiaV1Args{Feeds: f, Vaults: v}, nil
	}

	list := c.feedList(ctx)
	base, quote := make([]oracle.ChainlinkFeed, nBase), make([]oracle.ChainlinkFeed, nQuote)
	for i := range base {
		if base[i], err = c.chainlinkFeed(list, fmt.Sprintf("base feed %d", i+1), pair.Base.Symbol); err != nil {
			return nil, err
		}
	}
	for i := range quote {
		if quote[i], err = c.chainlinkFeed(list, fmt.Sprintf("quote feed %d", i+1), pair.Quote.Symbol); err != nil {
			return nil, err
		}
	}
	f, err := oracle.ChainlinkChain(pair.Base.Decimals, pair.Quote.Decimals, intermediary, base, quote)
	if err != nil {
		return nil, err
	}
	if family == registry.OracleChainlinkV1 {
		return oracle.ChainlinkV1Args{Feeds: f}, nil
	}
	v, err := c.vaultFeeds(ctx)
	if err != nil {
		return nil, err
	}
	return oracle.ChainlinkV2Args{Feeds: f, Vaults: v}, nil
}

// feedList returns the chain's visible Chainlink feeds, or nil when the
// listing is unavailable and feeds must be typed in.
func (c *console) feedList(ctx context.Context) []feeds.Feed {
	if c.ss.entry.ChainlinkFeedURL == "" {
		return nil
	}
	rctx, cancel := c.s.readContext(ctx)
	defer cancel()
	list, err := c.s.feedsClient().List(rctx, c.ss.entry.ChainlinkFeedURL)
	if err != nil {
		c.log.Warn("chainlink feed list unavailable", zap.Error(err))
		c.printf("feed list unavailable, enter feed addresses by hand\n")
		return nil
	}
	return feeds.Visible(list)
}

func (c *console) chainlinkFeed(list []feeds.Feed, label, hint string) (oracle.ChainlinkFeed, error) {
	if len(list) == 0 {
		addr, err := prompt.Address(c.p, "Chainlink "+label, common.Address{})
		return oracle.ChainlinkFeed{Feed: addr}, err
	}
	term, err := c.p.Input("Search feeds for "+label, hint, nil)
	if err != nil {
		return oracle.ChainlinkFeed{}, err
	}
	ranked := feeds.Search(list, term)
	if len(ranked) > feedChoices {
		ranked = ranked[:feedChoices]
	}
	items := make([]string, 0, len(ranked)+1)
	for _, f := range ranked {
		items = append(items, fmt.Sprintf("%s %s", f.Name(), id.ShortAddress(f.ProxyAddress)))
	}
	items = append(items, enterAddressOption)
	i, err := c.p.Select("Chainlink "+label, items)
	if err != nil {
		return oracle.ChainlinkFeed{}, err
	}
	if i < len(ranked) {
		return oracle.ChainlinkFeed{Feed: ranked[i].ProxyAddress}, nil
	}
	addr, err := prompt.Address(c.p, "Chainlink "+label, common.Address{})
	return oracle.ChainlinkFeed{Feed: addr}, err
}

func (c *console) diaFeed(label string) (oracle.DiaFeed, error) {
	addr, err := prompt.Address(c.p, "DIA oracle for "+label, common.Address{})
	if err != nil {
		return oracle.DiaFeed{}, err
	}
	key, err := c.p.Input("DIA key for "+label+" (e.g. ETH/USD)", "", func(v string) error {
		if v == "" {
			return errors.New("a key is required")
		}
		_, err := oracle.PackDiaKey(v)
		return message(err)
	})
	if err != nil {
		return oracle.DiaFeed{}, err
	}
	dec, err := prompt.Int(c.p, "Price decimals for "+label, defaultDiaDecimals, 0, maxVaultDecimals)
	if err != nil {
		return oracle.DiaFeed{}, err
	}
	return oracle.DiaFeed{Oracle: addr, Key: key, PriceDecimals: uint8(dec)}, nil
}

// vaultFeeds asks for optional ERC-4626 share conversions on each side.
func (c *console) vaultFeeds(ctx context.Context) (oracle.VaultFeeds, error) {
	var out oracle.VaultFeeds
	for _, side := range []string{"base", "quote"} {
		use, err := c.p.Confirm(fmt.Sprintf("Is the %s token priced through an ERC4626 vault", side), false)
		if err != nil {
			return out, err
		}
		if !use {
			continue
		}
		addr, err := prompt.Address(c.p, fmt.Sprintf("%s ERC4626 vault", side), common.Address{})
		if err != nil {
			return out, err
		}
		rctx, cancel := c.s.readContext(ctx)
		share, err := c.ss.reader.Token(rctx, addr)
		cancel()
		if err != nil {
			return out, err
		}
		one := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(share.Decimals)), nil)
		sample, err := prompt.Amount(c.p, fmt.Sprintf("Conversion sample in %s", share), share, one, nil)
		if err != nil {
			return out, err
		}
		feed := &oracle.VaultFeed{Vault: addr, ConversionSample: sample}
		if side == "base" {
			out.BaseVault = feed
		} else {
			out.QuoteVault = feed
		}
	}
	return out, nil
}
