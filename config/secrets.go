package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService under which secrets are stored in the OS keyring
	KeyringService = "lifespan"
	// KeyringPushoverAPIToken is the keyring user for the Pushover API token
	KeyringPushoverAPIToken = "pushover-api-token"
)

var (
	// ErrSecretNotSet occurs when a secret is found in none of its sources
	ErrSecretNotSet = errors.New("secret is not set")
)

// PushoverAPIToken resolves the Pushover application token from the config
// file, then the PUSHOVER_API_TOKEN environment variable, then the OS keyring
func (c *Config) PushoverAPIToken() (string, error) {
	if c.Notifier.Pushover.APIToken != "" {
		return c.Notifier.Pushover.APIToken, nil
	}

	if val, ok := os.LookupEnv(PushoverAPITokenEnv); ok && val != "" {
		return val, nil
	}

	val, err := keyring.Get(KeyringService, KeyringPushoverAPIToken)
	if err == nil && val != "" {
		return val, nil
	}

	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("unable to read pushover API token from keyring: %w", err)
	}

	return "", fmt.Errorf(
		"unable to get pushover API token from config, env variable %s or keyring: %w",
		PushoverAPITokenEnv,
		ErrSecretNotSet,
	)
}

// SetPushoverAPIToken stores the Pushover application token in the OS keyring
func SetPushoverAPIToken(token string) error {
	if err := keyring.Set(KeyringService, KeyringPushoverAPIToken, token); err != nil {
		return fmt.Errorf("unable to store pushover API token in keyring: %w", err)
	}

	return nil
}
