package credentials

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/zalando/go-keyring"
)

// Service is the keyring service name all entries are stored under.
const Service = "cxcli"

const (
	keyCustomerID     = ":customerid"
	keyClientID       = ":clientid"
	keyClientSecret   = ":clientsecret"
	keyAccessToken    = ":access_token"
	keyTokenTimestamp = ":access_token_timestamp"
)

const (
	EnvCustomerID   = "CXCUSTOMERID"
	EnvClientID     = "CXCLIENTID"
	EnvClientSecret = "CXCLIENTSECRET"
)

// ErrNotConfigured is returned when no complete set of credentials is
// available from either the environment or the store.
var ErrNotConfigured = errors.New("missing configuration")

// Credentials identify an API client of one customer.
type Credentials struct {
	CustomerID   string
	ClientID     string
	ClientSecret string
	// FromEnv is set when the credentials came from the environment. Tokens
	// obtained for them are never cached.
	FromEnv bool
}

// Complete reports whether every field is set.
func (c Credentials) Complete() bool {
	return c.CustomerID != "" && c.ClientID != "" && c.ClientSecret != ""
}

// Store is a secret key/value store. Get returns "" without error for keys
// that were never set.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// Keyring stores secrets in the operating system keyring.
type Keyring struct{}

func (Keyring) Get(key string) (string, error) {
	v, err := keyring.Get(Service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return v, err
}

func (Keyring) Set(key, value string) error {
	return keyring.Set(Service, key, value)
}

// FromEnv returns the credentials set in the environment; ok is false unless
// all three variables are present.
func FromEnv() (Credentials, bool) {
	c := Credentials{
		CustomerID:   os.Getenv(EnvCustomerID),
		ClientID:     os.Getenv(EnvClientID),
		ClientSecret: os.Getenv(EnvClientSecret),
		FromEnv:      true,
	}
	return c, c.Complete()
}

// Stored returns whatever credentials the store holds, complete or not.
func Stored(store Store) (Credentials, error) {
	var c Credentials
	var err error
	if c.CustomerID, err = store.Get(keyCustomerID); err != nil {
		return c, fmt.Errorf("failed to read credentials: %w", err)
	}
	if c.ClientID, err = store.Get(keyClientID); err != nil {
		return c, fmt.Errorf("failed to read credentials: %w", err)
	}
	if c.ClientSecret, err = store.Get(keyClientSecret); err != nil {
		return c, fmt.Errorf("failed to read credentials: %w", err)
	}
	return c, nil
}

// Resolve returns the credentials to use: the environment wins when it is
// complete, otherwise the store must hold a complete set. An unreadable
// store counts as not configured.
func Resolve(store Store) (Credentials, error) {
	if c, ok := FromEnv(); ok {
		return c, nil
	}
	c, err := Stored(store)
	if err != nil {
		return c, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}
	if !c.Complete() {
		return c, ErrNotConfigured
	}
	return c, nil
}

// Save stores c and invalidates any cached token.
func Save(store Store, c Credentials) error {
	for _, kv := range [][2]string{
		{keyCustomerID, c.CustomerID},
		{keyClientID, c.ClientID},
		{keyClientSecret, c.ClientSecret},
		{keyTokenTimestamp, "0"},
	} {
		if err := store.Set(kv[0], kv[1]); err != nil {
			return fmt.Errorf("failed to store credentials: %w", err)
		}
	}
	return nil
}

// CachedToken returns the cached access token and the time it was issued.
// A missing or unparsable timestamp yields the zero time.
func CachedToken(store Store) (string, time.Time, error) {
	ts, err := store.Get(keyTokenTimestamp)
	if err != nil {
		return "", time.Time{}, err
	}
	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || secs <= 0 {
		return "", time.Time{}, nil
	}
	token, err := store.Get(keyAccessToken)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, time.Unix(secs, 0), nil
}

// SaveToken caches token as issued at issued.
func SaveToken(store Store, token string, issued time.Time) error {
	if err := store.Set(keyAccessToken, token); err != nil {
		return err
	}
	return store.Set(keyTokenTimestamp, strconv.FormatInt(issued.Unix(), 10))
}
