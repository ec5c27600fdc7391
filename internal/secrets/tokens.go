package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// IngestToken is the secret that guards mutating API routes.
const IngestToken = "ingest-token"

// ErrNotFound is returned when neither the keyring nor the fallback file holds the secret.
var ErrNotFound = keyring.ErrNotFound

// ErrNoBackend is returned by Set when the keyring is unreachable and no
// fallback file is configured.
var ErrNoBackend = errors.New("secrets: keyring unavailable and no fallback file configured")

// Store keeps named secrets in the OS keychain, falling back to a 0600 JSON
// file when no keychain is reachable (headless Linux, containers).
type Store struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

// NewStore creates a secret store for service.
func NewStore(service, fallbackPath string) *Store {
	if strings.TrimSpace(service) == "" {
		service = "studio-analyzer"
	}
	return &Store{service: service, fallbackPath: fallbackPath}
}

// Set saves value under name.
func (s *Store) Set(name, value string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("secrets: name is required")
	}
	err := keyring.Set(s.service, name, value)
	if err == nil {
		return nil
	}
	if !isKeyringUnavailable(err) {
		return fmt.Errorf("secrets: keyring set %s: %w", name, err)
	}
	if strings.TrimSpace(s.fallbackPath) == "" {
		return fmt.Errorf("%w: %v", ErrNoBackend, err)
	}
	return s.updateFallback(func(m map[string]string) { m[name] = value })
}

// Get returns the secret stored under name, or ErrNotFound.
func (s *Store) Get(name string) (string, error) {
	val, err := keyring.Get(s.service, name)
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("secrets: keyring get %s: %w", name, err)
	}

	m, ferr := s.readFallback()
	if ferr != nil {
		return "", ferr
	}
	if v, ok := m[name]; ok {
		return v, nil
	}
	return "", ErrNotFound
}

// Delete removes name from both the keyring and the fallback file.
func (s *Store) Delete(name string) error {
	kerr := keyring.Delete(s.service, name)
	if kerr != nil && (errors.Is(kerr, keyring.ErrNotFound) || isKeyringUnavailable(kerr)) {
		kerr = nil
	}
	ferr := s.updateFallback(func(m map[string]string) { delete(m, name) })
	if kerr != nil {
		return fmt.Errorf("secrets: keyring delete %s: %w", name, kerr)
	}
	return ferr
}

// GenerateToken returns a random 32-byte hex token.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ResolveToken picks the ingest token: an explicit value wins, then the
// stored one. It reports where the token came from ("env", "keyring" or "").
func (s *Store) ResolveToken(explicit string) (token, source string, err error) {
	if explicit != "" {
		return explicit, "env", nil
	}
	tok, err := s.Get(IngestToken)
	if errors.Is(err, ErrNotFound) {
		return "", "", nil
	}
	if err != nil {
		return "", "", err
	}
	return tok, "keyring", nil
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

func (s *Store) readFallback() (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(s.fallbackPath) == "" {
		return out, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readFallbackUnlocked()
}

func (s *Store) readFallbackUnlocked() (map[string]string, error) {
	out := map[string]string{}
	raw, err := os.ReadFile(s.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("secrets: read fallback: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("secrets: decode fallback: %w", err)
	}
	return out, nil
}

func (s *Store) updateFallback(mutate func(map[string]string)) error {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readFallbackUnlocked()
	if err != nil {
		return err
	}
	mutate(m)

	if err := os.MkdirAll(filepath.Dir(s.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("secrets: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("secrets: write fallback: %w", err)
	}
	return nil
}
