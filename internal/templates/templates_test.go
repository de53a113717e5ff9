package templates

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/vision-assistant/internal/config"
)

func mkdir(t *testing.T, parts ...string) string {
	t.Helper()
	p := filepath.Join(parts...)
	require.NoError(t, os.MkdirAll(p, 0o755))
	return p
}

func fixedDir(dir string) func() (string, error) {
	return func() (string, error) { return dir, nil }
}

func failing() (string, error) { return "", errors.New("unavailable") }

func TestFinder_Root(t *testing.T) {
	t.Run("configured root wins", func(t *testing.T) {
		configured := mkdir(t, t.TempDir(), "custom")
		wd := t.TempDir()
		mkdir(t, wd, DirName)

		f := &Finder{Configured: configured, Getwd: fixedDir(wd), Home: failing}
		root, err := f.Root()
		require.NoError(t, err)
		assert.Equal(t, configured, root)
	})

	t.Run("search order", func(t *testing.T) {
		base := t.TempDir()
		wd := mkdir(t, base, "project")
		home := mkdir(t, base, "home")

		f := &Finder{Configured: filepath.Join(base, "missing"), Getwd: fixedDir(wd), Home: fixedDir(home)}
		assert.Equal(t, []string{
			filepath.Join(base, "missing"),
			filepath.Join(wd, DirName),
			filepath.Join(home, DirName),
			filepath.Join(base, DirName),
		}, f.Candidates())

		parent := mkdir(t, base, DirName)
		root, err := f.Root()
		require.NoError(t, err)
		assert.Equal(t, parent, root)

		inHome := mkdir(t, home, DirName)
		root, err = f.Root()
		require.NoError(t, err)
		assert.Equal(t, inHome, root)
	})

	t.Run("nothing found", func(t *testing.T) {
		f := &Finder{Getwd: failing, Home: failing}
		_, err := f.Root()
		assert.ErrorIs(t, err, ErrNoBaseDir)
	})
}

func TestValidateEMRPath(t *testing.T) {
	base := t.TempDir()
	good := mkdir(t, base, "office_ally", "general", "configs")
	require.NoError(t, os.WriteFile(filepath.Join(good, "config.json"), []byte(`{}`), 0o644))
	mkdir(t, base, "hollow")

	path, err := ValidateEMRPath(base, "office_ally")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "office_ally"), path)

	tests := []struct {
		name, base, system, wantErr string
	}{
		{"empty base", "", "office_ally", "no template base directory found"},
		{"missing system", base, "epic", "EMR system directory not found"},
		{"missing config", base, "hollow", "invalid EMR system structure"},
		{"path traversal", base, "../etc", "invalid EMR system name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateEMRPath(tt.base, tt.system)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFinder_EMRPath(t *testing.T) {
	wd := t.TempDir()
	cfgDir := mkdir(t, wd, DirName, "office_ally", "general", "configs")
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte(`{}`), 0o644))

	f := NewFinder(config.TemplatesConfig{})
	f.Getwd = fixedDir(wd)
	f.Home = failing

	path, err := f.EMRPath("office_ally")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, DirName, "office_ally"), path)
}
