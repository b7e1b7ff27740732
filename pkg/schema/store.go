package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store holds the scenario definitions discovered in a directory.
// Broken definitions are kept aside as DefinitionErrors so one bad file
// never takes the whole store down.
type Store struct {
	Dir string

	scenarios map[string]*Scenario
	order     []string
	broken    map[string]*DefinitionError
	brokenIDs []string
	warnings  map[string][]*ValidationError
}

// NewStore builds an in-memory store from already parsed scenarios.
// Order of the arguments is the discovery order.
func NewStore(scenarios ...*Scenario) *Store {
	s := newStore("")
	for _, sc := range scenarios {
		if err := s.add(sc); err != nil {
			s.addBroken(err)
		}
	}
	return s
}

// OpenStore loads every *.yaml / *.yml file in dir (sorted by file name,
// non-recursive). It only fails when the directory itself is unreadable.
func OpenStore(dir string) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario directory: %w", err)
	}
	s := newStore(dir)
	for _, entry := range entries {
		if entry.IsDir() || !isScenarioFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		sc, errs := ValidateFile(path)
		if sc == nil {
			s.addBroken(&DefinitionError{
				ScenarioID: guessID(path),
				Source:     path,
				Problems:   errs,
				Err:        errors.New(errs[0].Message),
			})
			continue
		}
		if HasErrors(errs) {
			id := sc.ID
			if id == "" {
				id = guessID(path)
			}
			s.addBroken(&DefinitionError{ScenarioID: id, Source: path, Problems: errs})
			continue
		}
		if err := s.add(sc); err != nil {
			s.addBroken(err)
			continue
		}
		if len(errs) > 0 {
			s.warnings[sc.ID] = errs
		}
	}
	return s, nil
}

func newStore(dir string) *Store {
	return &Store{
		Dir:       dir,
		scenarios: make(map[string]*Scenario),
		broken:    make(map[string]*DefinitionError),
		warnings:  make(map[string][]*ValidationError),
	}
}

func (s *Store) add(sc *Scenario) *DefinitionError {
	if prev, ok := s.scenarios[sc.ID]; ok {
		return &DefinitionError{
			ScenarioID: sc.ID,
			Source:     sc.Source,
			Err:        fmt.Errorf("duplicate scenario id (already defined in %s)", sourceName(prev)),
		}
	}
	s.scenarios[sc.ID] = sc
	s.order = append(s.order, sc.ID)
	return nil
}

func (s *Store) addBroken(err *DefinitionError) {
	key := err.ScenarioID
	if key == "" {
		key = err.Source
	}
	if _, ok := s.broken[key]; !ok {
		s.brokenIDs = append(s.brokenIDs, key)
	}
	s.broken[key] = err
}

// ListScenarios returns the IDs of all loadable scenarios in discovery order.
func (s *Store) ListScenarios() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Load returns the scenario with the given ID. Unknown IDs yield a
// *NotFoundError; IDs whose definition is broken yield the *DefinitionError.
func (s *Store) Load(id string) (*Scenario, error) {
	if sc, ok := s.scenarios[id]; ok {
		return sc, nil
	}
	if derr, ok := s.broken[id]; ok {
		return nil, derr
	}
	return nil, &NotFoundError{ID: id}
}

// All returns every loadable scenario in discovery order.
func (s *Store) All() []*Scenario {
	out := make([]*Scenario, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.scenarios[id])
	}
	return out
}

// DefinitionErrors returns the broken definitions in discovery order.
func (s *Store) DefinitionErrors() []*DefinitionError {
	out := make([]*DefinitionError, 0, len(s.brokenIDs))
	for _, key := range s.brokenIDs {
		out = append(out, s.broken[key])
	}
	return out
}

// Warnings returns non-fatal validation findings for a loaded scenario.
func (s *Store) Warnings(id string) []*ValidationError {
	return s.warnings[id]
}

func isScenarioFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// guessID recovers a scenario ID from a file that failed strict decoding:
// a lenient decode of the id field, falling back to the file stem.
func guessID(path string) string {
	if data, err := os.ReadFile(path); err == nil {
		var head struct {
			ID string `yaml:"id"`
		}
		if yaml.Unmarshal(data, &head) == nil && head.ID != "" {
			return head.ID
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func sourceName(sc *Scenario) string {
	if sc.Source == "" {
		return "memory"
	}
	return sc.Source
}
