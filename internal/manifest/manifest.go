// Package manifest reads the per-app start manifest. Each managed app
// directory carries an app.yaml describing how to launch it; the assigned
// ports are handed to the process through its environment at start time.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the manifest file expected inside every app directory.
const FileName = "app.yaml"

var (
	// ErrNotFound indicates the app directory has no manifest.
	ErrNotFound = errors.New("app manifest not found")
	// ErrInvalid indicates the manifest exists but cannot be used.
	ErrInvalid = errors.New("invalid app manifest")
)

// Manifest is the "how do I start this app" contract. Command runs with
// the app directory (or Workdir, if set) as its working directory, with
// FRONTEND_PORT and BACKEND_PORT added to Env.
type Manifest struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Workdir string            `yaml:"workdir,omitempty"`
}

// Load reads and validates the manifest in appDir.
func Load(appDir string) (*Manifest, error) {
	path := filepath.Join(appDir, FileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}
	if strings.TrimSpace(m.Command) == "" {
		return nil, fmt.Errorf("%w: %s: command is required", ErrInvalid, path)
	}
	if m.Workdir != "" && filepath.IsAbs(m.Workdir) {
		return nil, fmt.Errorf("%w: %s: workdir must be relative to the app directory", ErrInvalid, path)
	}
	return &m, nil
}

// Slugify derives the stable app name from a human project name: lowercase,
// runs of non-alphanumerics collapsed to single underscores. The slug stays
// identical across regenerations of the same logical app, which is what
// keeps its port assignment sticky.
func Slugify(name string) string {
	var b strings.Builder
	lastUnderscore := true // suppress a leading underscore
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
