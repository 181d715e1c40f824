package model

import "time"

const EnvelopeVersion = "v1"

// Envelope wraps the result of every non-interactive command.
type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string      `json:"request_id"`
	Timestamp time.Time   `json:"timestamp"`
	Command   string      `json:"command"`
	ChainID   int64       `json:"chain_id,omitempty"`
	Cache     CacheStatus `json:"cache"`
}

type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

// ProviderInfo describes an external service the console talks to.
type ProviderInfo struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Endpoint     string   `json:"endpoint,omitempty"`
	Capabilities []string `json:"capabilities"`
}

// RebalanceRoute is one aggregator usable on a chain.
type RebalanceRoute struct {
	Provider string `json:"provider"`
	Contract string `json:"contract"`
	Endpoint string `json:"endpoint"`
}

// FeedRow is a Chainlink feed as listed by `feeds list`.
type FeedRow struct {
	Name     string `json:"name"`
	Proxy    string `json:"proxy"`
	Contract string `json:"contract"`
	Decimals uint8  `json:"decimals"`
	Hidden   bool   `json:"hidden,omitempty"`
}

// ChainRow is a supported chain and its deployments.
type ChainRow struct {
	ChainID      int64            `json:"chain_id"`
	Slug         string           `json:"slug"`
	Name         string           `json:"name"`
	VaultFactory string           `json:"vault_factory"`
	MintHelper   string           `json:"mint_helper"`
	Seeders      []string         `json:"seeders"`
	Oracles      []string         `json:"oracle_families"`
	Rebalance    []RebalanceRoute `json:"rebalance"`
}
