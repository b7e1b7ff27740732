package schema

import (
	"fmt"
	"strings"
)

// DefinitionError reports a malformed or unreadable scenario definition.
// It is scoped to one scenario; the rest of the store stays usable.
type DefinitionError struct {
	ScenarioID string // may be empty when the file could not be decoded
	Source     string
	Problems   []*ValidationError
	Err        error
}

func (e *DefinitionError) Error() string {
	name := e.ScenarioID
	if name == "" {
		name = e.Source
	}
	if e.Err != nil {
		return fmt.Sprintf("scenario %s: %v", name, e.Err)
	}
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		if p.Severity == "error" {
			msgs = append(msgs, p.Error())
		}
	}
	return fmt.Sprintf("scenario %s: %s", name, strings.Join(msgs, "; "))
}

func (e *DefinitionError) Unwrap() error { return e.Err }

// NotFoundError is returned by Store.Load for an unknown scenario ID.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("scenario %q not found", e.ID)
}
