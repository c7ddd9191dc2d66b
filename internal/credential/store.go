package credential

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/sha3"

	"github.com/nao1215/phishguard/internal/config"
	"github.com/nao1215/phishguard/internal/database"
)

// StorageKey is the configuration key the API key is stored under.
const StorageKey = "companyApiKey"

// KeyringService is the service name used for keychain entries.
const KeyringService = config.AppName

var (
	// ErrNotFound is returned by Get when no key is stored.
	ErrNotFound = errors.New("api key not configured")

	// ErrEmptyKey is returned by Set when the key is blank.
	ErrEmptyKey = errors.New("api key must not be empty")
)

// Store reads and writes the API key.
type Store interface {
	// Get returns the stored key or ErrNotFound.
	Get(ctx context.Context) (string, error)

	// Set replaces the stored key. Blank keys are rejected with ErrEmptyKey.
	Set(ctx context.Context, key string) error

	// Clear removes the stored key. Clearing an unset key is not an error.
	Clear(ctx context.Context) error

	// Backend names the storage backend.
	Backend() string
}

// normalize trims the key and rejects blank values.
func normalize(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrEmptyKey
	}
	return key, nil
}

// Fingerprint returns a short SHA3-256 based identifier for key, suitable
// for display. It returns an empty string for an empty key.
func Fingerprint(key string) string {
	if key == "" {
		return ""
	}
	sum := sha3.Sum256([]byte(key))
	return "sha3:" + hex.EncodeToString(sum[:8])
}

// Open returns the store selected by cfg.CredentialBackend. db is only used
// by the database backend and may be nil otherwise.
func Open(cfg *config.Config, db *database.Store) (Store, error) {
	switch cfg.CredentialBackend {
	case "", config.CredentialBackendDatabase:
		if db == nil {
			return nil, errors.New("database credential backend requires an open database")
		}
		return NewDatabaseStore(db), nil
	case config.CredentialBackendKeyring:
		return NewKeyringStore(KeyringService), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownCredentialBackend, cfg.CredentialBackend)
	}
}

// DatabaseStore keeps the key in the SQLite settings table.
type DatabaseStore struct {
	db *database.Store
}

// NewDatabaseStore creates a DatabaseStore on an open database.
func NewDatabaseStore(db *database.Store) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// Get implements Store.
func (s *DatabaseStore) Get(ctx context.Context) (string, error) {
	value, ok, err := s.db.GetSetting(ctx, StorageKey)
	if err != nil {
		return "", err
	}
	if !ok || value == "" {
		return "", ErrNotFound
	}
	return value, nil
}

// Set implements Store.
func (s *DatabaseStore) Set(ctx context.Context, key string) error {
	key, err := normalize(key)
	if err != nil {
		return err
	}
	return s.db.SetSetting(ctx, StorageKey, key)
}

// Clear implements Store.
func (s *DatabaseStore) Clear(ctx context.Context) error {
	return s.db.DeleteSetting(ctx, StorageKey)
}

// Backend implements Store.
func (s *DatabaseStore) Backend() string {
	return config.CredentialBackendDatabase
}

// KeyringStore keeps the key in the operating system keychain.
// The keychain APIs are not cancellable, so the context is only checked
// before each call.
type KeyringStore struct {
	service string
}

// NewKeyringStore creates a KeyringStore using the given keychain service
// name.
func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{service: service}
}

// Get implements Store.
func (s *KeyringStore) Get(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	value, err := keyring.Get(s.service, StorageKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read keychain: %w", err)
	}
	return value, nil
}

// Set implements Store.
func (s *KeyringStore) Set(ctx context.Context, key string) error {
	key, err := normalize(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := keyring.Set(s.service, StorageKey, key); err != nil {
		return fmt.Errorf("failed to write keychain: %w", err)
	}
	return nil
}

// Clear implements Store.
func (s *KeyringStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := keyring.Delete(s.service, StorageKey)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete keychain entry: %w", err)
	}
	return nil
}

// Backend implements Store.
func (s *KeyringStore) Backend() string {
	return config.CredentialBackendKeyring
}

// MemoryStore keeps the key in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu  sync.RWMutex
	key string
}

// NewMemoryStore creates a MemoryStore holding key, which may be empty.
func NewMemoryStore(key string) *MemoryStore {
	return &MemoryStore{key: strings.TrimSpace(key)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == "" {
		return "", ErrNotFound
	}
	return s.key, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key string) error {
	key, err := normalize(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = ""
	return nil
}

// Backend implements Store.
func (s *MemoryStore) Backend() string {
	return "memory"
}
