// Package registry reads and edits the shared site registry, a YAML file
// that operators also maintain by hand:
//
//	sites:
//	  alpha:
//	    uri: https://alpha.example
//	  smoke-drupal:
//	    uri: http://localhost:8080
//
// Removals are text edits (so comments and formatting survive) committed
// through atomicfile.Update, with a YAML check as the final guard.
package registry

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/verity/pkg/atomicfile"
)

// ErrSiteNotFound is returned by RemoveSite for a name not in the registry.
var ErrSiteNotFound = errors.New("site not found in registry")

type document struct {
	Sites map[string]yaml.Node `yaml:"sites"`
}

// Registry is a handle on one registry file.
type Registry struct {
	Path            string
	MaxLinesRemoved int
	Logger          *slog.Logger
}

// New returns a registry handle. maxLinesRemoved bounds any single removal.
func New(path string, maxLinesRemoved int, logger *slog.Logger) *Registry {
	return &Registry{Path: path, MaxLinesRemoved: maxLinesRemoved, Logger: logger}
}

// Sites lists the site names. A missing file is an empty registry.
func (r *Registry) Sites() ([]string, error) {
	data, err := os.ReadFile(r.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return parseSites(data)
}

// SiteExists reports whether name is registered.
func (r *Registry) SiteExists(name string) (bool, error) {
	sites, err := r.Sites()
	if err != nil {
		return false, err
	}
	for _, s := range sites {
		if s == name {
			return true, nil
		}
	}
	return false, nil
}

// RemoveSite deletes the entry for name: its key line and every more
// deeply indented line below it.
func (r *Registry) RemoveSite(name string) (*atomicfile.Result, error) {
	exists, err := r.SiteExists(name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSiteNotFound, name)
	}

	var before []string
	validate := func(updated []byte) error {
		after, err := parseSites(updated)
		if err != nil {
			return err
		}
		for _, s := range after {
			if s == name {
				return fmt.Errorf("site %q still present", name)
			}
		}
		if len(after) != len(before)-1 {
			return fmt.Errorf("expected %d sites after removal, found %d", len(before)-1, len(after))
		}
		return nil
	}

	transform := func(original []byte) ([]byte, error) {
		sites, err := parseSites(original)
		if err != nil {
			return nil, err
		}
		before = sites
		return removeBlock(original, name)
	}

	return atomicfile.Update(r.Path, r.MaxLinesRemoved, transform,
		atomicfile.WithValidator(validate),
		atomicfile.WithLogger(r.Logger),
	)
}

func parseSites(data []byte) ([]string, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	names := make([]string, 0, len(doc.Sites))
	for name := range doc.Sites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

var keyLine = regexp.MustCompile(`^(\s+)("[^"]+"|'[^']+'|[^\s:#][^:#]*?)\s*:(\s|$)`)

// removeBlock drops the mapping entry for name inside the top-level
// "sites:" block.
func removeBlock(data []byte, name string) ([]byte, error) {
	lines := strings.SplitAfter(string(data), "\n")
	inSites := false
	start, end := -1, -1
	keyIndent, childIndent := 0, -1

	for i, line := range lines {
		trimmed := strings.TrimRight(line, "\r\n")
		if start >= 0 {
			// Blank lines after the entry go with it; the separator
			// before it stays.
			if strings.TrimSpace(trimmed) == "" || indentOf(trimmed) > keyIndent {
				continue
			}
			end = i
			break
		}
		if indentOf(trimmed) == 0 && strings.TrimSpace(trimmed) != "" && !strings.HasPrefix(trimmed, "#") {
			inSites = strings.HasPrefix(trimmed, "sites:")
			childIndent = -1
			continue
		}
		if !inSites {
			continue
		}
		m := keyLine.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		if childIndent < 0 {
			childIndent = len(m[1])
		}
		if len(m[1]) != childIndent || strings.Trim(m[2], `"'`) != name {
			continue
		}
		start = i
		keyIndent = len(m[1])
	}
	if start < 0 {
		return nil, fmt.Errorf("%w: no entry line for %s", ErrSiteNotFound, name)
	}
	if end < 0 {
		end = len(lines)
	}

	var b bytes.Buffer
	for _, l := range lines[:start] {
		b.WriteString(l)
	}
	for _, l := range lines[end:] {
		b.WriteString(l)
	}
	return b.Bytes(), nil
}

func indentOf(s string) int {
	return len(s) - len(strings.TrimLeft(s, " \t"))
}

