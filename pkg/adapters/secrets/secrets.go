// Package secrets provides local SecretStore implementations.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/blobrelay/pkg/domain"
)

// Dir reads each secret from a file named after it, the layout used by
// mounted Kubernetes and Docker secrets.
type Dir struct {
	Root string
}

// NewDir creates a directory-backed store.
func NewDir(root string) *Dir {
	return &Dir{Root: root}
}

// Get returns the file content with one trailing newline trimmed.
func (d *Dir) Get(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid secret name %q", name)
	}

	data, err := os.ReadFile(filepath.Join(d.Root, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", domain.ErrSecretNotFound, name)
		}
		return "", fmt.Errorf("read secret %s: %w", name, err)
	}
	return trimNewline(string(data)), nil
}

// Env reads secrets from environment variables. The secret name is
// upper-cased and dashes become underscores, so "sftp-private-key" is read
// from SFTP_PRIVATE_KEY (after Prefix).
type Env struct {
	Prefix string
	lookup func(string) (string, bool)
}

// NewEnv creates an environment-backed store.
func NewEnv(prefix string) *Env {
	return &Env{Prefix: prefix, lookup: os.LookupEnv}
}

// Get looks up the variable for name. Escaped "\n" sequences are expanded
// so a PEM key fits in a single-line variable.
func (e *Env) Get(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := e.VarName(name)
	val, ok := e.lookup(key)
	if !ok || val == "" {
		return "", fmt.Errorf("%w: %s (env %s)", domain.ErrSecretNotFound, name, key)
	}
	if !strings.Contains(val, "\n") {
		val = strings.ReplaceAll(val, `\n`, "\n")
	}
	return val, nil
}

// VarName returns the environment variable consulted for name.
func (e *Env) VarName(name string) string {
	return e.Prefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func trimNewline(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}
