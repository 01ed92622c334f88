package diagram

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"tikzflow/internal/services"
)

// Type classifies a physics diagram and steers conversion prompts and
// template selection.
type Type string

const (
	Mechanics      Type = "mechanics"
	Electricity    Type = "electricity"
	Optics         Type = "optics"
	Thermodynamics Type = "thermodynamics"
	Quantum        Type = "quantum"
	General        Type = "general"
)

var allTypes = []Type{Mechanics, Electricity, Optics, Thermodynamics, Quantum, General}

var typeSet = func() map[Type]struct{} {
	set := make(map[Type]struct{}, len(allTypes))
	for _, t := range allTypes {
		set[t] = struct{}{}
	}
	return set
}()

var basePrompts = map[Type]string{
	Mechanics:      "Convert this handwritten physics diagram to TikZ code. Focus on forces, vectors, motion, and mechanical systems.",
	Electricity:    "Convert this handwritten electrical circuit or field diagram to TikZ code. Include proper circuit symbols and field lines.",
	Optics:         "Convert this handwritten optics diagram to TikZ code. Include light rays, lenses, mirrors, and optical components.",
	Thermodynamics: "Convert this handwritten thermodynamics diagram to TikZ code. Include heat flow, PV diagrams, and thermodynamic systems.",
	Quantum:        "Convert this handwritten quantum mechanics diagram to TikZ code. Include wave functions, energy levels, and quantum states.",
	General:        "Convert this handwritten physics diagram to clean TikZ code.",
}

// Types returns every known diagram type in display order.
func Types() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

// ParseType normalizes raw into a Type. Blank input selects General.
func ParseType(raw string) (Type, error) {
	normalized := Type(strings.ToLower(strings.TrimSpace(raw)))
	if normalized == "" {
		return General, nil
	}
	if !normalized.Valid() {
		return "", services.Wrap(services.ErrValidation, "diagram", "parse type",
			fmt.Sprintf("unknown diagram type %q", raw), nil)
	}
	return normalized, nil
}

// Valid reports whether t is one of the known diagram types.
func (t Type) Valid() bool {
	_, ok := typeSet[t]
	return ok
}

// Title returns a display label such as "Thermodynamics".
func (t Type) Title() string {
	return cases.Title(language.English).String(string(t))
}

// Prompt returns the conversion instruction for t, falling back to General.
func (t Type) Prompt() string {
	if prompt, ok := basePrompts[t]; ok {
		return prompt
	}
	return basePrompts[General]
}

// BuildPrompt appends the caller's free-text hint to the type's base prompt.
func BuildPrompt(t Type, hint string) string {
	prompt := t.Prompt()
	if hint = strings.TrimSpace(hint); hint != "" {
		prompt += " Additional context: " + hint
	}
	return prompt
}
