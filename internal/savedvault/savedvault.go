package savedvault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/flock"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	FileVersion  = 1
	TypeERC4626  = "erc4626"
	lockTimeout  = 5 * time.Second
	lockInterval = 50 * time.Millisecond
)

// SavedVault is a vault the operator bookmarked.
type SavedVault struct {
	Address   string `json:"address"`
	Name      string `json:"name"`
	ChainID   int64  `json:"chainId"`
	Label     string `json:"label,omitempty"`
	VaultType string `json:"vaultType,omitempty"`
}

// Validate checks a record before it is saved. Records already on disk only
// need a valid address.
func (v SavedVault) Validate() error {
	if !common.IsHexAddress(v.Address) {
		return clierr.New(clierr.CodeValidation, fmt.Sprintf("invalid vault address %q", v.Address))
	}
	if strings.TrimSpace(v.Name) == "" {
		return clierr.New(clierr.CodeValidation, "vault name is required")
	}
	if v.ChainID <= 0 {
		return clierr.New(clierr.CodeValidation, "chain id must be positive")
	}
	if v.VaultType != "" && v.VaultType != TypeERC4626 {
		return clierr.New(clierr.CodeValidation, fmt.Sprintf("unknown vault type %q", v.VaultType))
	}
	return nil
}

// Display is the line shown in vault pickers.
func (v SavedVault) Display() string {
	name := v.Name
	if v.Label != "" {
		name = fmt.Sprintf("%s (%s)", v.Label, v.Name)
	}
	return fmt.Sprintf("%s %s", name, common.HexToAddress(v.Address).Hex())
}

func (v SavedVault) same(o SavedVault) bool {
	return v.ChainID == o.ChainID && strings.EqualFold(v.Address, o.Address)
}

// File is the on-disk document.
type File struct {
	Version int          `json:"version"`
	Vaults  []SavedVault `json:"vaults"`
}

func empty() File { return File{Version: FileVersion, Vaults: []SavedVault{}} }

func (f File) ForChain(chainID int64) []SavedVault {
	out := make([]SavedVault, 0, len(f.Vaults))
	for _, v := range f.Vaults {
		if v.ChainID == chainID {
			out = append(out, v)
		}
	}
	return out
}

// upsert replaces a record with the same chain and address, or appends.
func (f *File) upsert(v SavedVault) {
	for i := range f.Vaults {
		if f.Vaults[i].same(v) {
			f.Vaults[i] = v
			return
		}
	}
	f.Vaults = append(f.Vaults, v)
}

// Repository is satisfied by Store and Memory.
type Repository interface {
	Load() (File, error)
	Save(SavedVault) error
	ForChain(chainID int64) ([]SavedVault, error)
}

// Store keeps saved vaults in a JSON file guarded by a lock file.
type Store struct {
	path     string
	lockPath string
	log      *zap.Logger
}

func NewStore(path, lockPath string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if lockPath == "" {
		lockPath = path + ".lock"
	}
	return &Store{path: path, lockPath: lockPath, log: log}
}

func (s *Store) Path() string { return s.path }

// Load reads the file. A missing file is empty; an unreadable or invalid
// one is logged and treated as empty without being rewritten.
func (s *Store) Load() (File, error) {
	r, err := s.read()
	if err != nil {
		return File{}, err
	}
	if r.invalid != nil {
		s.log.Warn("invalid saved vault file, ignoring it", zap.String("path", s.path), zap.Error(r.invalid))
	}
	return r.file, nil
}

// readResult is the file on disk; invalid holds the decode error of a file
// that exists but cannot be used, in which case file is empty.
type readResult struct {
	file    File
	invalid error
}

func (s *Store) read() (readResult, error) {
	buf, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return readResult{file: empty()}, nil
	}
	if err != nil {
		return readResult{}, clierr.Wrap(clierr.CodeInternal, "read saved vaults", err)
	}
	f, err := decode(buf)
	if err != nil {
		return readResult{file: empty(), invalid: err}, nil
	}
	return readResult{file: f}, nil
}

func decode(buf []byte) (File, error) {
	var f File
	if err := json.Unmarshal(buf, &f); err != nil {
		return File{}, err
	}
	if f.Version != FileVersion {
		return File{}, fmt.Errorf("unsupported version %d", f.Version)
	}
	if f.Vaults == nil {
		f.Vaults = []SavedVault{}
	}
	for i, v := range f.Vaults {
		if !common.IsHexAddress(v.Address) {
			return File{}, fmt.Errorf("vault %d: invalid address %q", i, v.Address)
		}
	}
	return f, nil
}

func (s *Store) ForChain(chainID int64) ([]SavedVault, error) {
	f, err := s.Load()
	if err != nil {
		return nil, err
	}
	return f.ForChain(chainID), nil
}

// Save validates v and writes it under the lock, replacing any record for
// the same chain and address.
func (s *Store) Save(v SavedVault) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return clierr.Wrap(clierr.CodeInternal, "create saved vault directory", err)
	}
	lock := flock.New(s.lockPath)
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(ctx, lockInterval)
	if err != nil || !locked {
		return clierr.Wrap(clierr.CodeUnavailable, "lock saved vault file", err)
	}
	defer func() { _ = lock.Unlock() }()

	r, err := s.read()
	if err != nil {
		return err
	}
	if r.invalid != nil {
		backup := s.path + ".bak"
		if err := os.Rename(s.path, backup); err != nil {
			return clierr.Wrap(clierr.CodeInternal, "back up invalid saved vault file", err)
		}
		s.log.Warn("invalid saved vault file moved aside", zap.String("backup", backup), zap.Error(r.invalid))
	}
	f := r.file
	f.upsert(v)
	buf, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "encode saved vaults", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return clierr.Wrap(clierr.CodeInternal, "write saved vaults", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return clierr.Wrap(clierr.CodeInternal, "replace saved vaults", err)
	}
	s.log.Debug("saved vault", zap.String("address", v.Address), zap.Int64("chain_id", v.ChainID))
	return nil
}

// Memory is an in-process Repository.
type Memory struct {
	mu   sync.Mutex
	file File
}

func NewMemory(vaults ...SavedVault) *Memory {
	m := &Memory{file: empty()}
	for _, v := range vaults {
		m.file.upsert(v)
	}
	return m
}

func (m *Memory) Load() (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return File{Version: m.file.Version, Vaults: append([]SavedVault{}, m.file.Vaults...)}, nil
}

func (m *Memory) Save(v SavedVault) error {
	if err := v.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.file.upsert(v)
	return nil
}

func (m *Memory) ForChain(chainID int64) ([]SavedVault, error) {
	f, _ := m.Load()
	return f.ForChain(chainID), nil
}
