// File: internal/workflow/config.go
package workflow

import (
	"fmt"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// GeneralPage is the name of the page every EMR system starts on.
const GeneralPage = "general"

// PageDirs locates a page's templates and configs, relative to the EMR root.
type PageDirs struct {
	Images  string `json:"images"`
	Configs string `json:"configs"`
}

// Task is a scripted sequence of assistant operations.
type Task struct {
	Name        string
	InitialPage string
	Operations  []Operation
}

// GeneralConfig is the decoded general/configs/config.json of one EMR system.
type GeneralConfig struct {
	Pages     map[string]PageDirs
	Tasks     map[string]Task
	TaskRoute map[string][]string
}

// LoadGeneralConfig reads an EMR system's config.json.
func LoadGeneralConfig(path string) (*GeneralConfig, error) {
	data, err := readJSONC(path)
	if err != nil {
		return nil, err
	}
	cfg, err := ParseGeneralConfig(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseGeneralConfig decodes a config document. Backslashes in page
// directories become forward slashes.
func ParseGeneralConfig(data []byte) (*GeneralConfig, error) {
	var doc struct {
		Pages map[string]PageDirs `json:"pages"`
		Tasks map[string]struct {
			InitialPage string                `json:"initial_page"`
			Operations  []jsoniter.RawMessage `json:"operations"`
		} `json:"tasks"`
		TaskRoute map[string][]string `json:"task_route"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("no pages declared")
	}

	cfg := &GeneralConfig{
		Pages:     make(map[string]PageDirs, len(doc.Pages)),
		Tasks:     make(map[string]Task, len(doc.Tasks)),
		TaskRoute: doc.TaskRoute,
	}
	if cfg.TaskRoute == nil {
		cfg.TaskRoute = make(map[string][]string)
	}
	for name, dirs := range doc.Pages {
		cfg.Pages[name] = PageDirs{
			Images:  NormalizeSeparators(dirs.Images),
			Configs: NormalizeSeparators(dirs.Configs),
		}
	}
	for name, t := range doc.Tasks {
		if t.InitialPage == "" {
			return nil, fmt.Errorf("task %q: missing initial_page", name)
		}
		task := Task{Name: name, InitialPage: t.InitialPage}
		for i, raw := range t.Operations {
			op, err := ParseOperation(raw)
			if err != nil {
				return nil, fmt.Errorf("task %q operation %d: %w", name, i+1, err)
			}
			task.Operations = append(task.Operations, op)
		}
		cfg.Tasks[name] = task
	}
	return cfg, nil
}

// Page returns the directories of a declared page.
func (c *GeneralConfig) Page(name string) (PageDirs, error) {
	dirs, ok := c.Pages[name]
	if !ok {
		return PageDirs{}, fmt.Errorf("invalid page type: %s", name)
	}
	return dirs, nil
}

// Task returns a declared task.
func (c *GeneralConfig) Task(name string) (Task, error) {
	t, ok := c.Tasks[name]
	if !ok {
		return Task{}, fmt.Errorf("task '%s' not found in configuration", name)
	}
	return t, nil
}

// Route returns the navigation templates clicked to reach a task.
func (c *GeneralConfig) Route(task string) ([]string, error) {
	r, ok := c.TaskRoute[task]
	if !ok {
		return nil, fmt.Errorf("invalid task: %s", task)
	}
	return r, nil
}

// PageNames lists the declared pages in sorted order.
func (c *GeneralConfig) PageNames() []string {
	names := make([]string, 0, len(c.Pages))
	for n := range c.Pages {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NormalizeSeparators turns Windows path separators into forward slashes.
func NormalizeSeparators(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}
