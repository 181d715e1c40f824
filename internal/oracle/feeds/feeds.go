// Package feeds lists the Chainlink price feeds published for a chain.
package feeds

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jsoniter "github.com/json-iterator/go"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/mangrovedao/vault-console/internal/cache"
	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/httpx"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const DefaultTTL = time.Hour

// Feed is one usable Chainlink crypto feed.
type Feed struct {
	ContractAddress common.Address `json:"contractAddress"`
	ProxyAddress    common.Address `json:"proxyAddress"`
	Pair            [2]string      `json:"pair"`
	Decimals        uint8          `json:"decimals"`
	Hidden          bool           `json:"hidden"`
}

func (f Feed) Name() string {
	return f.Pair[0] + "/" + f.Pair[1]
}

// rawFeed mirrors the published document loosely; entries that do not fit
// are filtered out rather than failing the whole listing.
type rawFeed struct {
	ContractAddress string   `json:"contractAddress"`
	ProxyAddress    string   `json:"proxyAddress"`
	Pair            []string `json:"pair"`
	FeedType        string   `json:"feedType"`
	Decimals        any      `json:"decimals"`
	Docs            *struct {
		Hidden bool `json:"hidden"`
	} `json:"docs"`
}

// Client fetches feed listings through the shared HTTP client. Raw
// documents go to the sqlite cache; parsed lists are memoized in-process.
type Client struct {
	http   *httpx.Client
	store  *cache.Store
	ttl    time.Duration
	parsed *gocache.Cache
	log    *zap.Logger
}

type Option func(*Client)

// WithStore enables the on-disk document cache.
func WithStore(s *cache.Store) Option {
	return func(c *Client) { c.store = s }
}

func WithTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func New(http *httpx.Client, opts ...Option) *Client {
	c := &Client{http: http, ttl: DefaultTTL, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	c.parsed = gocache.New(c.ttl, 2*c.ttl)
	return c
}

// List returns every valid crypto feed at url, hidden ones included.
func (c *Client) List(ctx context.Context, url string) ([]Feed, error) {
	if strings.TrimSpace(url) == "" {
		return nil, clierr.New(clierr.CodeUnsupported, "no chainlink feed listing for this chain")
	}
	if v, ok := c.parsed.Get(url); ok {
		return v.([]Feed), nil
	}
	body, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	var raw []rawFeed
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode chainlink feed listing", err)
	}
	feeds := filter(raw)
	c.parsed.SetDefault(url, feeds)
	c.log.Debug("chainlink feeds loaded", zap.String("url", url), zap.Int("total", len(raw)), zap.Int("usable", len(feeds)))
	return feeds, nil
}

// fetch serves a fresh cached document, otherwise downloads it. A stale
// document is the fallback when the download fails.
func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	key := cache.Key("chainlink-feeds", url)
	var doc cache.Document
	if c.store != nil {
		d, err := c.store.Get(key, 24*time.Hour)
		if err != nil {
			c.log.Warn("feed cache read failed", zap.Error(err))
		} else if d.Hit && !d.Stale {
			return d.Body, nil
		}
		doc = d
	}

	var body jsoniter.RawMessage
	if err := c.http.GetJSON(ctx, url, &body); err != nil {
		if doc.Hit && !doc.Expired {
			c.log.Warn("serving stale chainlink feeds", zap.String("url", url), zap.Duration("age", doc.Age), zap.Error(err))
			return doc.Body, nil
		}
		return nil, err
	}
	if c.store != nil {
		if err := c.store.Put(key, body, c.ttl); err != nil {
			c.log.Warn("feed cache write failed", zap.Error(err))
		}
	}
	return body, nil
}

// filter keeps crypto feeds with non-zero contract and proxy addresses, a
// two-symbol pair and positive decimals.
func filter(raw []rawFeed) []Feed {
	out := make([]Feed, 0, len(raw))
	for _, r := range raw {
		if r.FeedType != "Crypto" || len(r.Pair) != 2 {
			continue
		}
		contract, ok := nonZeroAddress(r.ContractAddress)
		if !ok {
			continue
		}
		proxy, ok := nonZeroAddress(r.ProxyAddress)
		if !ok {
			continue
		}
		dec, ok := r.Decimals.(float64)
		if !ok || dec <= 0 || dec > 255 || dec != float64(uint8(dec)) {
			continue
		}
		f := Feed{
			ContractAddress: contract,
			ProxyAddress:    proxy,
			Pair:            [2]string{r.Pair[0], r.Pair[1]},
			Decimals:        uint8(dec),
		}
		if r.Docs != nil {
			f.Hidden = r.Docs.Hidden
		}
		out = append(out, f)
	}
	return out
}

func nonZeroAddress(v string) (common.Address, bool) {
	if !common.IsHexAddress(v) {
		return common.Address{}, false
	}
	addr := common.HexToAddress(v)
	return addr, addr != (common.Address{})
}

// Visible drops hidden feeds.
func Visible(feeds []Feed) []Feed {
	out := make([]Feed, 0, len(feeds))
	for _, f := range feeds {
		if !f.Hidden {
			out = append(out, f)
		}
	}
	return out
}

// Search ranks feeds against a free-text term: an exact "BASE/QUOTE" pair
// first, then address fragments, whole symbols and partial symbols.
// Non-matching feeds keep their order at the end.
func Search(feeds []Feed, term string) []Feed {
	type scored struct {
		feed  Feed
		score int
	}
	list := make([]scored, len(feeds))
	for i, f := range feeds {
		list[i] = scored{feed: f, score: score(f, term)}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].score > list[j].score })
	out := make([]Feed, len(list))
	for i, s := range list {
		out[i] = s.feed
	}
	return out
}

// ForMarket returns the feeds quoting base or quote, best matches first.
func ForMarket(feeds []Feed, base, quote string) []Feed {
	out := make([]Feed, 0)
	for _, f := range Search(feeds, base+"/"+quote) {
		if score(f, base+" "+quote) >= 100 {
			out = append(out, f)
		}
	}
	return out
}

func score(f Feed, term string) int {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return 0
	}
	if strings.ToLower(f.Name()) == term {
		return 1000
	}
	if looksLikeAddress(term) && strings.Contains(strings.ToLower(f.ContractAddress.Hex()), strings.TrimPrefix(term, "0x")) {
		return 500
	}
	words := strings.FieldsFunc(term, func(r rune) bool { return r == ' ' || r == '/' })
	for _, w := range words {
		for _, sym := range f.Pair {
			if strings.ToLower(sym) == w {
				return 100
			}
		}
	}
	for _, w := range words {
		for _, sym := range f.Pair {
			if strings.Contains(strings.ToLower(sym), w) {
				return 10
			}
		}
	}
	return 0
}

func looksLikeAddress(term string) bool {
	if strings.HasPrefix(term, "0x") {
		return true
	}
	if len(term) < 6 {
		return false
	}
	for _, r := range term {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

// String renders a feed the way the picker lists it.
func (f Feed) String() string {
	return fmt.Sprintf("%s (%s)", f.Name(), f.ProxyAddress.Hex())
}
