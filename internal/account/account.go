// Package account manages trading accounts: an index of account metadata
// plus one directory per account holding its setup file with key material.
package account

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/internal/storage"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

const (
	indexFile = "accounts.json"
	setupFile = "setup.json"

	// DefaultID is the account that always exists and cannot be deleted.
	DefaultID = "default"
)

// Account is one trading identity.
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Setup holds an account's credential material. Persisted with 0600
// permissions; the private key is stored in its encrypted form and only
// decrypted in memory by the signing layer.
type Setup struct {
	EncryptedPrivateKey string `json:"encryptedPrivateKey"`
	ProxyAddress        string `json:"proxyAddress"`
	SignatureType       int    `json:"signatureType"` // 0 EOA, 1 proxy, 2 email/social
}

// Manager owns the account index and per-account state directories.
type Manager struct {
	stateDir string
	index    *storage.FileStore
	logger   *zap.Logger

	mu       sync.Mutex
	accounts map[string]*Account
}

// NewManager loads (or creates) the index under stateDir and guarantees the
// default account exists.
func NewManager(stateDir string, logger *zap.Logger) (*Manager, error) {
	index, err := storage.NewFileStore(stateDir)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		stateDir: stateDir,
		index:    index,
		logger:   logger,
		accounts: make(map[string]*Account),
	}

	var persisted map[string]*Account
	found, err := m.index.Load(indexFile, &persisted)
	if err != nil {
		return nil, err
	}
	if found {
		m.accounts = persisted
	}

	if _, ok := m.accounts[DefaultID]; !ok {
		now := time.Now()
		m.accounts[DefaultID] = &Account{
			ID:        DefaultID,
			Name:      "default",
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := m.persist(); err != nil {
			return nil, err
		}
		logger.Info("default-account-created")
	}
	logger.Info("account-index-loaded", zap.Int("accounts", len(m.accounts)))
	return m, nil
}

func (m *Manager) persist() error {
	snapshot := make(map[string]*Account, len(m.accounts))
	for k, v := range m.accounts {
		snapshot[k] = v
	}
	return m.index.Save(indexFile, snapshot)
}

// List returns all accounts.
func (m *Manager) List() []*Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	return out
}

// Get returns one account by ID.
func (m *Manager) Get(id string) (*Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	return a, ok
}

// Create adds a new account with a generated ID.
func (m *Manager) Create(name string) (*Account, error) {
	if name == "" {
		return nil, types.E(types.KindValidation, "account.Create", "name is required")
	}
	now := time.Now()
	a := &Account{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.accounts[a.ID] = a
	err := m.persist()
	if err != nil {
		delete(m.accounts, a.ID)
	}
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	m.logger.Info("account-created", zap.String("account-id", a.ID), zap.String("name", name))
	return a, nil
}

// Rename updates an account's name.
func (m *Manager) Rename(id, name string) (*Account, error) {
	if name == "" {
		return nil, types.E(types.KindValidation, "account.Rename", "name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, types.E(types.KindValidation, "account.Rename", "account "+id+" not found")
	}
	prev := a.Name
	a.Name = name
	a.UpdatedAt = time.Now()
	if err := m.persist(); err != nil {
		a.Name = prev
		return nil, err
	}
	return a, nil
}

// Delete removes an account and its state directory. The default account is
// never deleted; it must always exist for sessions without an explicit
// account.
func (m *Manager) Delete(id string) error {
	if id == DefaultID {
		return types.E(types.KindValidation, "account.Delete", "the default account cannot be deleted")
	}
	m.mu.Lock()
	a, ok := m.accounts[id]
	if !ok {
		m.mu.Unlock()
		return types.E(types.KindValidation, "account.Delete", "account "+id+" not found")
	}
	delete(m.accounts, id)
	err := m.persist()
	if err != nil {
		m.accounts[id] = a
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if err := os.RemoveAll(m.accountDir(id)); err != nil {
		m.logger.Warn("account-dir-remove-failed", zap.String("account-id", id), zap.Error(err))
	}
	m.logger.Info("account-deleted", zap.String("account-id", id))
	return nil
}

func (m *Manager) accountDir(id string) string {
	return filepath.Join(m.stateDir, "accounts", id)
}

// SaveSetup writes the account's setup file with owner-only permissions.
func (m *Manager) SaveSetup(id string, setup *Setup) error {
	if _, ok := m.Get(id); !ok {
		return types.E(types.KindValidation, "account.SaveSetup", "account "+id+" not found")
	}
	store, err := storage.NewFileStore(m.accountDir(id))
	if err != nil {
		return err
	}
	if err := store.SaveMode(setupFile, setup, 0o600); err != nil {
		return err
	}
	m.logger.Info("account-setup-saved", zap.String("account-id", id))
	return nil
}

// LoadSetup reads the account's setup file.
func (m *Manager) LoadSetup(id string) (*Setup, error) {
	if _, ok := m.Get(id); !ok {
		return nil, types.E(types.KindValidation, "account.LoadSetup", "account "+id+" not found")
	}
	store, err := storage.NewFileStore(m.accountDir(id))
	if err != nil {
		return nil, err
	}
	var setup Setup
	found, err := store.Load(setupFile, &setup)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, types.E(types.KindValidation, "account.LoadSetup", "account "+id+" has no setup")
	}
	return &setup, nil
}
