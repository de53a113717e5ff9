// internal/emr/layout.go
package emr

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/xkilldash9x/vision-assistant/internal/workflow"
)

// Layout is the on-disk template tree of one EMR system.
type Layout struct {
	Root           string
	Config         *workflow.GeneralConfig
	GeneralImages  string
	GeneralConfigs string
}

// ConfigPath returns the location of an EMR system's config.json.
func ConfigPath(root string) string {
	return filepath.Join(root, workflow.GeneralPage, "configs", "config.json")
}

// LoadLayout reads root/general/configs/config.json and checks that every
// directory it declares exists.
func LoadLayout(root string) (*Layout, error) {
	expanded, err := homedir.Expand(root)
	if err != nil {
		return nil, ConfigurationError(root, err)
	}
	path := ConfigPath(expanded)

	cfg, err := workflow.LoadGeneralConfig(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ConfigurationError(path, errors.New("configuration file not found"))
		}
		return nil, ConfigurationError(path, err)
	}

	l := &Layout{
		Root:           expanded,
		Config:         cfg,
		GeneralImages:  filepath.Join(expanded, workflow.GeneralPage, "images"),
		GeneralConfigs: filepath.Join(expanded, workflow.GeneralPage, "configs"),
	}
	if err := requireDir(l.GeneralImages); err != nil {
		return nil, ConfigurationError(workflow.GeneralPage, err)
	}
	for _, name := range cfg.PageNames() {
		images, configs, err := l.PageDirs(name)
		if err != nil {
			return nil, err
		}
		for _, dir := range []string{images, configs} {
			if err := requireDir(dir); err != nil {
				return nil, ConfigurationError(name, err)
			}
		}
	}
	return l, nil
}

// PageDirs resolves a page's image and config directories.
func (l *Layout) PageDirs(page string) (images, configs string, err error) {
	dirs, err := l.Config.Page(page)
	if err != nil {
		return "", "", ConfigurationError(page, err)
	}
	return filepath.Join(l.Root, filepath.FromSlash(dirs.Images)),
		filepath.Join(l.Root, filepath.FromSlash(dirs.Configs)), nil
}

// GeneralTemplate returns the path of a template in general/images.
func (l *Layout) GeneralTemplate(name string) string {
	return filepath.Join(l.GeneralImages, name+".png")
}

// FieldNames lists the PNG templates of a page image directory, without
// extension, sorted.
func FieldNames(imagesDir string) ([]string, error) {
	entries, err := os.ReadDir(imagesDir)
	if err != nil {
		return nil, TemplateError(imagesDir, fmt.Errorf("error getting field names: %w", err))
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if strings.EqualFold(filepath.Ext(n), ".png") {
			names = append(names, strings.TrimSuffix(n, filepath.Ext(n)))
		}
	}
	sort.Strings(names)
	return names, nil
}

func requireDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("directory not found: %s", dir)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", dir)
	}
	return nil
}
