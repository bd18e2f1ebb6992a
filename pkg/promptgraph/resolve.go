package promptgraph

// ModelAssignment is the default provider and model for a node type.
type ModelAssignment struct {
	ProviderID string `json:"providerId" yaml:"provider"`
	Model      string `json:"model" yaml:"model"`
	Rationale  string `json:"rationale,omitempty" yaml:"rationale,omitempty"`
}

// Resolved is the effective provider and model for one node.
type Resolved struct {
	ProviderID string
	Model      string
}

// Resolver picks the provider and model a node runs against.
type Resolver interface {
	Resolve(nodeType NodeType, data NodeData, globalProviderID string) Resolved
}

// DefaultModels returns the built-in per-type assignments.
// Mechanical text steps use a small fast model; vision steps go to Claude.
func DefaultModels() ModelTable {
	return ModelTable{
		TypeGrammarFix:       {ProviderID: "mistral", Model: "ministral-14b-2512", Rationale: "Mechanical task"},
		TypeCompressor:       {ProviderID: "mistral", Model: "ministral-14b-2512", Rationale: "Summarization"},
		TypePromptEnhancer:   {ProviderID: "mistral", Model: "ministral-14b-2512", Rationale: "Fast writing"},
		TypeInitialPrompt:    {ProviderID: "mistral", Model: "ministral-14b-2512", Rationale: "Persona injection only"},
		TypeTranslator:       {ProviderID: "mistral", Model: "ministral-14b-2512", Rationale: "Mechanical translation"},
		TypeStoryTeller:      {ProviderID: "mistral", Model: "labs-mistral-small-creative", Rationale: "Creative writing"},
		TypeImageDescriber:   {ProviderID: "claude", Rationale: "Vision"},
		TypePersonasReplacer: {ProviderID: "claude", Rationale: "Vision"},
	}
}

// ModelTable resolves with the precedence node override, then node-type
// default, then the flow's global provider.
type ModelTable map[NodeType]ModelAssignment

// Resolve implements Resolver.
func (t ModelTable) Resolve(nodeType NodeType, data NodeData, globalProviderID string) Resolved {
	var override Base
	if data != nil {
		override = data.Settings()
	}
	def := t[nodeType]

	return Resolved{
		ProviderID: firstNonEmpty(override.ProviderID, def.ProviderID, globalProviderID),
		Model:      firstNonEmpty(override.Model, def.Model),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
