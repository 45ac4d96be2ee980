// Package oskeyring keeps CLI session tokens in the operating system keyring.
package oskeyring

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	keyringlib "github.com/zalando/go-keyring"
)

// ServiceName is the keyring service under which tokens are stored.
const ServiceName = "safereport"

// ErrNotFound is returned when no token is stored for a server.
var ErrNotFound = errors.New("secret not found in keyring")

// Service is the subset of a keyring the token store needs.
type Service interface {
	// Get returns ErrNotFound if the secret does not exist.
	Get(service, user string) (string, error)
	Set(service, user, password string) error
	// Delete does not fail when the secret does not exist.
	Delete(service, user string) error
}

// DefaultService is backed by the OS keyring through zalando/go-keyring.
type DefaultService struct{}

func NewDefaultService() *DefaultService {
	return &DefaultService{}
}

func (s *DefaultService) Get(service, user string) (string, error) {
	secret, err := keyringlib.Get(service, user)
	if err != nil {
		if errors.Is(err, keyringlib.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get secret from OS keyring: %w", err)
	}
	return secret, nil
}

func (s *DefaultService) Set(service, user, password string) error {
	if err := keyringlib.Set(service, user, password); err != nil {
		return fmt.Errorf("failed to store secret in OS keyring: %w", err)
	}
	return nil
}

func (s *DefaultService) Delete(service, user string) error {
	err := keyringlib.Delete(service, user)
	if err != nil && !errors.Is(err, keyringlib.ErrNotFound) {
		return fmt.Errorf("failed to delete secret from OS keyring: %w", err)
	}
	return nil
}

var _ Service = (*DefaultService)(nil)

// MemoryService is an in-memory Service for tests.
type MemoryService struct {
	mu    sync.RWMutex
	store map[string]map[string]string // service -> user -> secret
}

func NewMemoryService() *MemoryService {
	return &MemoryService{store: make(map[string]map[string]string)}
}

func (s *MemoryService) Get(service, user string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if secret, ok := s.store[service][user]; ok {
		return secret, nil
	}
	return "", ErrNotFound
}

func (s *MemoryService) Set(service, user, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.store[service]; !ok {
		s.store[service] = make(map[string]string)
	}
	s.store[service][user] = password
	return nil
}

func (s *MemoryService) Delete(service, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if users, ok := s.store[service]; ok {
		delete(users, user)
		if len(users) == 0 {
			delete(s.store, service)
		}
	}
	return nil
}

var _ Service = (*MemoryService)(nil)

// TokenStore saves one session token per server.
type TokenStore struct {
	keyring Service
}

func NewTokenStore(keyring Service) *TokenStore {
	return &TokenStore{keyring: keyring}
}

// Save stores token for serverURL, replacing any previous one.
func (s *TokenStore) Save(serverURL, token string) error {
	account, err := accountFor(serverURL)
	if err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return errors.New("token cannot be empty")
	}
	return s.keyring.Set(ServiceName, account, token)
}

// Load returns the token for serverURL or ErrNotFound.
func (s *TokenStore) Load(serverURL string) (string, error) {
	account, err := accountFor(serverURL)
	if err != nil {
		return "", err
	}
	return s.keyring.Get(ServiceName, account)
}

func (s *TokenStore) Forget(serverURL string) error {
	account, err := accountFor(serverURL)
	if err != nil {
		return err
	}
	return s.keyring.Delete(ServiceName, account)
}

// accountFor normalizes serverURL to scheme://host so trailing slashes and
// paths share a keyring entry.
func accountFor(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q", serverURL)
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}
