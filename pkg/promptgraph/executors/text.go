package executors

import (
	"strings"

	"github.com/randalmurphal/promptgraph/pkg/promptgraph"
)

// Persona is a character appearance fed to a node through an adapter edge.
type Persona struct {
	Name        string
	Description string
}

var languageNames = map[string]string{
	"en": "English", "es": "Spanish", "fr": "French", "de": "German",
	"it": "Italian", "pt": "Portuguese", "ru": "Russian", "ja": "Japanese",
	"ko": "Korean", "zh": "Chinese", "ar": "Arabic", "hi": "Hindi",
	"tr": "Turkish", "pl": "Polish", "nl": "Dutch", "sv": "Swedish",
	"da": "Danish", "fi": "Finnish", "no": "Norwegian", "cs": "Czech",
	"el": "Greek", "he": "Hebrew", "th": "Thai", "vi": "Vietnamese",
	"id": "Indonesian", "uk": "Ukrainian", "ro": "Romanian", "hu": "Hungarian",
}

// LanguageName maps a language code to its English name. Unknown codes
// are returned as given, so a free-form name also works.
func LanguageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}

// MergeText joins the text of each input, falling back to its persona
// description, separated by blank lines. Empty inputs are dropped.
func MergeText(inputs []promptgraph.NodeOutput) string {
	parts := make([]string, 0, len(inputs))
	for _, in := range inputs {
		text := in.Text
		if text == "" {
			text = in.PersonaDescription
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Personas returns the personas carried by adapter inputs, in order.
// Inputs without a description are ignored.
func Personas(adapterInputs []promptgraph.NodeOutput) []Persona {
	var out []Persona
	for _, in := range adapterInputs {
		if in.PersonaDescription == "" {
			continue
		}
		name := in.PersonaName
		if name == "" {
			name = DefaultPersonaName
		}
		out = append(out, Persona{Name: name, Description: in.PersonaDescription})
	}
	return out
}

// describePersonas renders personas for the injection prompt. A single
// persona is its bare description.
func describePersonas(personas []Persona) string {
	if len(personas) == 1 {
		return personas[0].Description
	}
	parts := make([]string, len(personas))
	for i, p := range personas {
		parts[i] = p.Name + ": " + p.Description
	}
	return strings.Join(parts, "\n\n")
}
