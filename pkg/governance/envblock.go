package governance

import "strings"

// FilterEnvVars returns env with denied variables removed, plus the
// names that were dropped.
func (g *Engine) FilterEnvVars(env []string) ([]string, []string) {
	if g == nil || len(g.DenyEnvVars) == 0 {
		return env, nil
	}
	var filtered, blocked []string
	for _, e := range env {
		name, _, _ := strings.Cut(e, "=")
		if err := g.CheckEnvVar(name); err != nil {
			blocked = append(blocked, name)
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered, blocked
}
