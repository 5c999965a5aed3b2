package credentials

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"taskbridge/backend"
	"taskbridge/internal/utils"
)

// Source indicates where a token was found.
type Source string

const (
	SourceKeyring Source = "keyring"
	SourceEnv     Source = "env"
	SourcePrompt  Source = "prompt"
)

// Token is a resolved API token together with its origin.
type Token struct {
	Value  string
	Source Source
}

// Resolver finds the remote token using the priority order
// keyring > environment > interactive prompt. The lookup functions are
// fields so tests can substitute them.
type Resolver struct {
	// AllowPrompt enables the interactive fallback when stdin is a
	// terminal. Off for non-interactive callers.
	AllowPrompt bool

	keyringGet func(account string) (string, error)
	envGet     func() string
	isTerminal func() bool
	readSecret func() ([]byte, error)
}

// NewResolver creates a resolver backed by the real keyring, environment
// and terminal.
func NewResolver(allowPrompt bool) *Resolver {
	return &Resolver{
		AllowPrompt: allowPrompt,
		keyringGet:  GetToken,
		envGet:      TokenFromEnv,
		isTerminal:  func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
		readSecret:  func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) },
	}
}

// Resolve returns the token for the given account. A missing token while
// the remote is required is a configuration error.
func (r *Resolver) Resolve(account string) (*Token, error) {
	if account == "" {
		return nil, backend.NewStoreError("ResolveToken", backend.KindConfig,
			"account is required for token resolution")
	}

	if token, err := r.keyringGet(account); err == nil && token != "" {
		utils.Debugf("token for %q resolved from keyring", account)
		return &Token{Value: token, Source: SourceKeyring}, nil
	}

	if token := r.envGet(); token != "" {
		utils.Debugf("token for %q resolved from environment", account)
		return &Token{Value: token, Source: SourceEnv}, nil
	}

	if r.AllowPrompt && r.isTerminal() {
		fmt.Fprintf(os.Stderr, "API token for %s: ", account)
		raw, err := r.readSecret()
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, backend.NewStoreError("ResolveToken", backend.KindConfig,
				"failed to read token from terminal").WithError(err)
		}
		token := strings.TrimSpace(string(raw))
		if token != "" {
			return &Token{Value: token, Source: SourcePrompt}, nil
		}
	}

	return nil, backend.NewStoreError("ResolveToken", backend.KindConfig,
		fmt.Sprintf("no token found for %q (tried: keyring, %s)",
			account, strings.Join(tokenEnvVars, ", ")))
}
