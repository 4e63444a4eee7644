package skills

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const manifestFile = "SKILL.md"

// resourceDirs are the sibling folders listed alongside a skill's body.
var resourceDirs = []string{"scripts", "references", "assets"}

var ErrUnknownSkill = errors.New("unknown skill")

type Skill struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Body        string `json:"-"`
	Dir         string `json:"dir"`
}

// Loader is a read-only name to skill map built once from a directory.
type Loader struct {
	root  string
	items map[string]Skill
}

// Load scans the immediate subdirectories of root for SKILL.md manifests.
// Malformed manifests are skipped; a missing root yields an empty loader.
func Load(root string, logger *zap.Logger) (*Loader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loader{root: root, items: map[string]Skill{}}
	if strings.TrimSpace(root) == "" {
		return l, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return l, nil
		}
		return nil, fmt.Errorf("read skills dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		data, err := os.ReadFile(filepath.Join(dir, manifestFile))
		if err != nil {
			continue
		}
		m, err := parseManifest(string(data))
		if err != nil {
			logger.Debug("skip skill manifest", zap.String("dir", dir), zap.Error(err))
			continue
		}
		name := m.fields["name"]
		if _, dup := l.items[name]; dup {
			logger.Debug("skip duplicate skill", zap.String("name", name), zap.String("dir", dir))
			continue
		}
		l.items[name] = Skill{
			Name:        name,
			Description: m.fields["description"],
			Body:        m.body,
			Dir:         dir,
		}
	}
	return l, nil
}

// Empty returns a loader with no skills.
func Empty() *Loader {
	return &Loader{items: map[string]Skill{}}
}

func (l *Loader) Root() string {
	if l == nil {
		return ""
	}
	return l.root
}

// Names returns the registered skill names, sorted.
func (l *Loader) Names() []string {
	if l == nil {
		return nil
	}
	names := make([]string, 0, len(l.items))
	for name := range l.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *Loader) Get(name string) (Skill, bool) {
	if l == nil {
		return Skill{}, false
	}
	s, ok := l.items[name]
	return s, ok
}

// Descriptions renders one "- name: description" line per skill.
func (l *Loader) Descriptions() string {
	names := l.Names()
	if len(names) == 0 {
		return "(no skills available)"
	}
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("- %s: %s", name, l.items[name].Description))
	}
	return strings.Join(lines, "\n")
}

// Content returns the full text of a skill with its resource listing.
func (l *Loader) Content(name string) (string, bool) {
	s, ok := l.Get(name)
	if !ok {
		return "", false
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Skill: %s\n\n%s", s.Name, s.Body)

	var resources []string
	for _, folder := range resourceDirs {
		files := listFiles(filepath.Join(s.Dir, folder))
		if len(files) > 0 {
			resources = append(resources, fmt.Sprintf("- %s: %s", folder, strings.Join(files, ", ")))
		}
	}
	if len(resources) > 0 {
		fmt.Fprintf(&sb, "\n\n**Available resources in %s:**\n%s", s.Dir, strings.Join(resources, "\n"))
	}
	return sb.String(), true
}

// UnknownError reports a missing skill together with every known name.
func (l *Loader) UnknownError(name string) error {
	available := "none"
	if names := l.Names(); len(names) > 0 {
		available = strings.Join(names, ", ")
	}
	return fmt.Errorf("%w '%s'. Available: %s", ErrUnknownSkill, name, available)
}

func listFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}
