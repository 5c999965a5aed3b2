// Package credentials resolves the remote API token from the OS keyring,
// the environment and, as a last resort, an interactive prompt.
package credentials

import (
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name for all taskbridge keyring entries.
const KeyringService = "taskbridge"

// SetToken stores a token in the OS keyring under the given account
// (e.g. "remote").
func SetToken(account, token string) error {
	if account == "" {
		return fmt.Errorf("account cannot be empty")
	}
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}
	if err := keyring.Set(KeyringService, account, token); err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}
	return nil
}

// GetToken retrieves a token from the OS keyring.
func GetToken(account string) (string, error) {
	if account == "" {
		return "", fmt.Errorf("account cannot be empty")
	}
	token, err := keyring.Get(KeyringService, account)
	if err != nil {
		if err == keyring.ErrNotFound {
			return "", fmt.Errorf("no token found in keyring for %q", account)
		}
		return "", fmt.Errorf("failed to retrieve token from keyring: %w", err)
	}
	return token, nil
}

// DeleteToken removes a token from the OS keyring.
func DeleteToken(account string) error {
	if account == "" {
		return fmt.Errorf("account cannot be empty")
	}
	if err := keyring.Delete(KeyringService, account); err != nil {
		if err == keyring.ErrNotFound {
			return fmt.Errorf("no token found in keyring for %q", account)
		}
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}

// KeyringAvailable checks whether the OS keyring is accessible. A probe
// for a non-existent entry returning ErrNotFound means the keyring works.
func KeyringAvailable() bool {
	_, err := keyring.Get("taskbridge-keyring-test", "probe")
	return err == nil || err == keyring.ErrNotFound
}
