// Package modelmap resolves client-facing model names to upstream model ids
// and infers reasoning overrides from effort suffixes.
package modelmap

import "strings"

// effortSuffixes are stripped from model names and double as reasoning-effort
// overrides. Longest match first so "-minimal" is not split as "-mini…".
var effortSuffixes = []string{"-minimal", "-medium", "-high", "-low"}

// Mapper resolves model names using an alias table and an optional hard
// override that wins over everything (debugging aid).
type Mapper struct {
	aliases      map[string]string
	defaultModel string
	override     string
}

// New builds a Mapper. Alias keys are matched case-insensitively.
func New(aliases map[string]string, defaultModel, override string) *Mapper {
	m := &Mapper{
		aliases:      make(map[string]string, len(aliases)),
		defaultModel: defaultModel,
		override:     strings.TrimSpace(override),
	}
	for name, target := range aliases {
		m.aliases[strings.ToLower(strings.TrimSpace(name))] = target
	}
	return m
}

// Resolution is the outcome of mapping one client model name.
type Resolution struct {
	// Model is the canonical upstream model id.
	Model string
	// Effort is the reasoning effort inferred from a name suffix, empty
	// when the name carried none.
	Effort string
}

// Resolve strips a recognized effort suffix, applies the alias table, and
// falls back to the default model for empty input. The hard override, when
// configured, replaces the result regardless of what the client sent.
func (m *Mapper) Resolve(requested string) Resolution {
	name := strings.TrimSpace(requested)
	if name == "" {
		name = m.defaultModel
	}

	var effort string
	lower := strings.ToLower(name)
	for _, suffix := range effortSuffixes {
		if strings.HasSuffix(lower, suffix) && len(lower) > len(suffix) {
			effort = strings.TrimPrefix(suffix, "-")
			name = name[:len(name)-len(suffix)]
			lower = lower[:len(lower)-len(suffix)]
			break
		}
	}

	if target, ok := m.aliases[lower]; ok {
		name = target
	}
	if m.override != "" {
		name = m.override
	}
	return Resolution{Model: name, Effort: effort}
}
