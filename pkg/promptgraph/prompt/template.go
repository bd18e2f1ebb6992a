// Package prompt renders the prompt templates sent to language models by
// the built-in executors.
//
// Templates use ${name} placeholders. Substitution is a single pass over
// the template text: values are never rescanned, so user text containing
// "${...}" or "$word" reaches the model verbatim.
package prompt

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// placeholder matches ${name}; name is a letter or underscore followed by
// letters, digits or underscores.
var placeholder = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Vars are the values substituted into a template.
type Vars map[string]string

// Template is a named prompt with ${name} placeholders.
// A Template is immutable and safe for concurrent use.
type Template struct {
	name string
	text string
}

// New creates a template.
func New(name, text string) Template {
	return Template{name: name, text: text}
}

// Name returns the template name used in errors.
func (t Template) Name() string { return t.name }

// Text returns the raw template text.
func (t Template) Text() string { return t.text }

// Render substitutes vars into the template. Every placeholder must have a
// value; otherwise the partially rendered text is returned together with
// an *UndefinedVariableError listing each missing name once.
func (t Template) Render(vars Vars) (string, error) {
	var missing []string
	seen := make(map[string]bool)

	out := placeholder.ReplaceAllStringFunc(t.text, func(match string) string {
		name := match[2 : len(match)-1]
		if val, ok := vars[name]; ok {
			return val
		}
		if !seen[name] {
			seen[name] = true
			missing = append(missing, name)
		}
		return match
	})

	if len(missing) > 0 {
		return out, &UndefinedVariableError{Template: t.name, Names: missing}
	}
	return out, nil
}

// MustRender is Render for templates whose variables are known to be
// complete. It panics on a missing variable.
func (t Template) MustRender(vars Vars) string {
	out, err := t.Render(vars)
	if err != nil {
		panic(fmt.Sprintf("prompt: %v", err))
	}
	return out
}

// Vars returns the distinct placeholder names in sorted order.
func (t Template) Vars() []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholder.FindAllStringSubmatch(t.text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names
}

// UndefinedVariableError reports placeholders with no value.
type UndefinedVariableError struct {
	Template string
	Names    []string
}

// Error implements the error interface.
func (e *UndefinedVariableError) Error() string {
	prefix := "prompt"
	if e.Template != "" {
		prefix = "prompt " + e.Template
	}
	if len(e.Names) == 1 {
		return fmt.Sprintf("%s: undefined variable: %s", prefix, e.Names[0])
	}
	return fmt.Sprintf("%s: undefined variables: %s", prefix, strings.Join(e.Names, ", "))
}
