package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/mangrovedao/vault-console/internal/cache"
	"github.com/mangrovedao/vault-console/internal/chain"
	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/execution"
	"github.com/mangrovedao/vault-console/internal/httpx"
	"github.com/mangrovedao/vault-console/internal/id"
	"github.com/mangrovedao/vault-console/internal/oracle/feeds"
	"github.com/mangrovedao/vault-console/internal/registry"
	"github.com/mangrovedao/vault-console/internal/savedvault"
)

func dialRPC(ctx context.Context, rpcURL string) (execution.Backend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// session is one chain connection, with an executor when a key is loaded.
type session struct {
	chain   id.Chain
	entry   registry.Entry
	backend execution.Backend
	reader  *chain.Client
	exec    *execution.Executor
}

// account is the signer's address, or zero in a keyless session.
func (ss *session) account() common.Address {
	if ss.exec == nil {
		return common.Address{}
	}
	return ss.exec.Sender()
}

func (s *runtimeState) selectedChain() (id.Chain, error) {
	return id.ParseChain(s.settings.Chain)
}

// openSession dials the chain and checks the node serves it. withKey loads
// the operator key and builds the executor.
func (s *runtimeState) openSession(ctx context.Context, c id.Chain, withKey bool) (*session, error) {
	entry, ok := registry.Lookup(c.EVMChainID)
	if !ok {
		return nil, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no vault deployment on %s", c.Name))
	}
	rpcURL, err := registry.RPCURL(s.settings.RPCFor(c.EVMChainID), c.EVMChainID)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "resolve rpc url", err)
	}

	dctx, cancel := s.readContext(ctx)
	defer cancel()
	backend, err := s.runner.dial(dctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect to rpc", err)
	}
	if closer, ok := backend.(interface{ Close() }); ok {
		s.closers = append(s.closers, closer.Close)
	}
	served, err := backend.ChainID(dctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read rpc chain id", err)
	}
	if served.Int64() != c.EVMChainID {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("rpc serves chain %s, expected %d (%s)", served, c.EVMChainID, c.Name))
	}
	s.lastChainID = c.EVMChainID

	log := s.log.With(zap.Int64("chain_id", c.EVMChainID))
	ss := &session{
		chain:   c,
		entry:   entry,
		backend: backend,
		reader:  chain.New(backend, c.EVMChainID, chain.WithLogger(log)),
	}
	if !withKey {
		return ss, nil
	}

	key, err := s.runner.keys(s.keySource)
	if err != nil {
		return nil, err
	}
	store, err := s.openActionStore()
	if err != nil {
		return nil, err
	}
	ss.exec = execution.New(backend, key, c.EVMChainID,
		execution.WithOptions(execution.OptionsFrom(s.settings.Execution)),
		execution.WithStore(store),
		execution.WithOutput(s.runner.stdout),
		execution.WithLogger(log),
		execution.WithReader(ss.reader),
	)
	log.Debug("session ready", zap.String("account", key.Address().Hex()), zap.String("rpc", redactURL(rpcURL)))
	return ss, nil
}

func (s *runtimeState) openActionStore() (*execution.Store, error) {
	if s.actionStore != nil {
		return s.actionStore, nil
	}
	store, err := execution.OpenStore(s.settings.ActionStorePath, s.settings.ActionLockPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open action history", err)
	}
	s.actionStore = store
	s.closers = append(s.closers, func() { _ = store.Close() })
	return store, nil
}

// openCache returns nil when caching is disabled or the cache cannot be
// opened; feed listings then go straight to the network.
func (s *runtimeState) openCache() *cache.Store {
	if !s.settings.CacheEnabled {
		return nil
	}
	if s.cache != nil {
		return s.cache
	}
	store, err := cache.Open(s.settings.CachePath, s.settings.CacheLockPath)
	if err != nil {
		s.log.Warn("feed cache unavailable", zap.Error(err))
		s.warn("feed cache unavailable: " + err.Error())
		return nil
	}
	s.cache = store
	s.closers = append(s.closers, func() { _ = store.Close() })
	return store
}

func (s *runtimeState) httpClient() *httpx.Client {
	return httpx.New(s.settings.Timeout, s.settings.Retries,
		httpx.WithRateLimit(s.settings.RateLimit, s.settings.Burst),
		httpx.WithLogger(s.log))
}

func (s *runtimeState) feedsClient() *feeds.Client {
	opts := []feeds.Option{feeds.WithLogger(s.log), feeds.WithTTL(s.settings.FeedTTL)}
	if store := s.openCache(); store != nil {
		opts = append(opts, feeds.WithStore(store))
	}
	return feeds.New(s.httpClient(), opts...)
}

func (s *runtimeState) savedVaults() *savedvault.Store {
	return savedvault.NewStore(s.settings.VaultsPath, s.settings.VaultsLockPath, s.log)
}

// redactURL keeps scheme and host; RPC paths often carry API keys.
func redactURL(raw string) string {
	if i := strings.Index(raw, "://"); i >= 0 {
		rest := raw[i+3:]
		if j := strings.IndexAny(rest, "/?"); j >= 0 {
			return raw[:i+3] + rest[:j] + "/..."
		}
	}
	return raw
}
