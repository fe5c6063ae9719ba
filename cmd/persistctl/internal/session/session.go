// Package session opens the kernel a persistctl command works on.
package session

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/redbco/redb-persist/pkg/config"
	"github.com/redbco/redb-persist/pkg/persist"
	"github.com/redbco/redb-persist/pkg/shape"
)

// Settings are the global command line flags.
type Settings struct {
	ConfigFile  string
	URL         string
	ShapesFile  string
	AskPassword bool
}

// Open loads configuration and declared types and opens a kernel. The
// caller closes the kernel, which closes the database.
func Open(ctx context.Context, s Settings) (*persist.Kernel, error) {
	cfg, err := Config(s)
	if err != nil {
		return nil, err
	}
	reg, err := Registry(s.ShapesFile)
	if err != nil {
		return nil, err
	}
	return persist.OpenConfig(ctx, cfg, reg)
}

// Config loads the config file and applies the flag overrides.
func Config(s Settings) (*config.Config, error) {
	cfg, err := config.Load(s.ConfigFile)
	if err != nil {
		return nil, err
	}
	if s.URL != "" {
		cfg.Set(config.KeyDatabaseURL, s.URL)
	}
	if s.AskPassword {
		raw := cfg.Get(config.KeyDatabaseURL)
		if raw == "" {
			return nil, fmt.Errorf("%s is required", config.KeyDatabaseURL)
		}
		password, err := readPassword(fmt.Sprintf("Password for %s: ", redact(raw)))
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		withPassword, err := WithPassword(raw, password)
		if err != nil {
			return nil, err
		}
		cfg.Set(config.KeyDatabaseURL, withPassword)
	}
	return cfg, nil
}

// Registry reads the declared types. Without a file the registry holds
// only the root type, which is enough to inspect a store.
func Registry(path string) (*shape.Registry, error) {
	reg := shape.NewRegistry()
	if path == "" {
		return reg, nil
	}
	if err := reg.LoadFile(path); err != nil {
		return nil, err
	}
	return reg, nil
}

// WithPassword sets the password of a connection URL. The user name must be
// present already.
func WithPassword(raw, password string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid connection URL: %w", err)
	}
	if u.User == nil || u.User.Username() == "" {
		return "", fmt.Errorf("connection URL has no user name")
	}
	u.User = url.UserPassword(u.User.Username(), password)
	return u.String(), nil
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}

// readPassword reads a password from stdin without echoing characters
func readPassword(prompt string) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(bytePassword)), nil
}
