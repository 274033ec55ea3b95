// Package credential loads the bearer token used to authenticate API calls.
//
// Sources are consulted once per check; nothing is cached.
package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultFileName is the key file looked up in the user's home directory
const DefaultFileName = "openapi.key"

// ErrEmptyToken is returned when a source yields no token
var ErrEmptyToken = errors.New("credential is empty")

// Source yields a bearer token
type Source interface {
	Token() (string, error)
}

// DefaultPath returns $HOME/openapi.key
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultFileName
	}
	return filepath.Join(home, DefaultFileName)
}

// FileSource reads the token from a plain-text file. Unless Raw is set,
// surrounding whitespace (typically a trailing newline) is trimmed.
type FileSource struct {
	Path string
	Raw  bool
}

// Token reads the whole file
func (f FileSource) Token() (string, error) {
	path := f.Path
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read credential file: %w", err)
	}

	token := string(data)
	if !f.Raw {
		token = strings.TrimSpace(token)
	}
	if token == "" {
		return "", fmt.Errorf("%s: %w", path, ErrEmptyToken)
	}
	return token, nil
}

// EnvSource reads the token from an environment variable
type EnvSource struct {
	Name string
}

// Token returns the trimmed variable value
func (e EnvSource) Token() (string, error) {
	token := strings.TrimSpace(os.Getenv(e.Name))
	if token == "" {
		return "", fmt.Errorf("$%s: %w", e.Name, ErrEmptyToken)
	}
	return token, nil
}

// Static is a fixed token
type Static string

// Token returns the fixed token
func (s Static) Token() (string, error) {
	if s == "" {
		return "", ErrEmptyToken
	}
	return string(s), nil
}
