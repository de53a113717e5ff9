// File: internal/templates/templates.go
// Package templates locates the per-EMR template trees on disk.
package templates

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/xkilldash9x/vision-assistant/internal/config"
	"github.com/xkilldash9x/vision-assistant/internal/emr"
)

// DirName is the conventional name of the template base directory.
const DirName = "emr_templates"

// ErrNoBaseDir is returned when no template base directory exists.
var ErrNoBaseDir = errors.New("no template base directory found")

// Finder searches for the template base directory. The configured root
// wins; after it come the working directory, the home directory and the
// parent of the working directory.
type Finder struct {
	Configured string
	Getwd      func() (string, error)
	Home       func() (string, error)
}

// NewFinder creates a finder over the process environment.
func NewFinder(cfg config.TemplatesConfig) *Finder {
	return &Finder{Configured: cfg.Root, Getwd: os.Getwd, Home: homedir.Dir}
}

// Candidates lists the directories Root considers, in order.
func (f *Finder) Candidates() []string {
	var out []string
	if f.Configured != "" {
		if p, err := homedir.Expand(f.Configured); err == nil {
			out = append(out, p)
		}
	}
	wd, wdErr := f.Getwd()
	if wdErr == nil {
		out = append(out, filepath.Join(wd, DirName))
	}
	if home, err := f.Home(); err == nil {
		out = append(out, filepath.Join(home, DirName))
	}
	if wdErr == nil {
		out = append(out, filepath.Join(filepath.Dir(wd), DirName))
	}
	return out
}

// Root returns the first existing candidate.
func (f *Finder) Root() (string, error) {
	for _, c := range f.Candidates() {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c, nil
		}
	}
	return "", ErrNoBaseDir
}

// EMRPath locates and validates the tree of one EMR system.
func (f *Finder) EMRPath(system string) (string, error) {
	base, err := f.Root()
	if err != nil {
		return "", err
	}
	return ValidateEMRPath(base, system)
}

// ValidateEMRPath checks that base/system holds a general config.
func ValidateEMRPath(base, system string) (string, error) {
	if base == "" {
		return "", ErrNoBaseDir
	}
	if system == "" || filepath.Base(system) != system {
		return "", fmt.Errorf("invalid EMR system name %q", system)
	}
	path := filepath.Join(base, system)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("EMR system directory not found: %s", path)
	}
	cfg := emr.ConfigPath(path)
	if _, err := os.Stat(cfg); err != nil {
		return "", fmt.Errorf("invalid EMR system structure, expected %s", cfg)
	}
	return path, nil
}
