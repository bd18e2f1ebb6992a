// Package executors provides the built-in node executors.
//
// Pure nodes (consistentCharacter, textOutput) never call a model. Text
// steps render a prompt template and call the llm.Client registered for
// the node's resolved provider. Image nodes (imageDescriber,
// imageGenerator, personasReplacer) have no built-in executor and are
// skipped unless the caller registers one.
package executors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/randalmurphal/promptgraph/pkg/promptgraph"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/llm"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/prompt"
)

// DefaultCompressThreshold is the input length at or below which the
// compressor passes text through unchanged.
const DefaultCompressThreshold = 2500

// DefaultPersonaName names a persona whose source left the name empty.
const DefaultPersonaName = "Character"

// Failure messages shown on the node when it has nothing to work with.
const (
	MsgNoCharacter   = "No character selected: drag one from Assets"
	MsgNoPromptText  = "No prompt text entered"
	MsgNoEnhanceText = "No input text to enhance"
	MsgNoTranslate   = "No input text to translate"
	MsgNoIdea        = "No idea provided"
	MsgNoGrammarText = "No input text to fix"
	MsgNoCompress    = "No input text to compress"
)

// ErrEmptyResponse is returned when a model answers with no text.
var ErrEmptyResponse = errors.New("empty response from model")

// Set holds the dependencies shared by the built-in executors.
type Set struct {
	providers         *llm.Providers
	logger            *slog.Logger
	compressThreshold int
}

// Option configures a Set.
type Option func(*Set)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Set) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCompressThreshold overrides DefaultCompressThreshold.
func WithCompressThreshold(n int) Option {
	return func(s *Set) {
		if n > 0 {
			s.compressThreshold = n
		}
	}
}

// New creates the executor set. providers may be nil when only the pure
// executors are used; text steps then fail with llm.ErrUnknownProvider.
func New(providers *llm.Providers, opts ...Option) *Set {
	if providers == nil {
		providers = llm.NewProviders()
	}
	s := &Set{
		providers:         providers,
		logger:            slog.Default(),
		compressThreshold: DefaultCompressThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds every built-in executor to reg and returns it.
func (s *Set) Register(reg *promptgraph.Registry) *promptgraph.Registry {
	return reg.
		Register(promptgraph.TypeConsistentCharacter, s.ConsistentCharacter).
		Register(promptgraph.TypeTextOutput, s.TextOutput).
		Register(promptgraph.TypeInitialPrompt, s.InitialPrompt).
		Register(promptgraph.TypePromptEnhancer, s.PromptEnhancer).
		Register(promptgraph.TypeTranslator, s.Translator).
		Register(promptgraph.TypeStoryTeller, s.StoryTeller).
		Register(promptgraph.TypeGrammarFix, s.GrammarFix).
		Register(promptgraph.TypeCompressor, s.Compressor)
}

// ConsistentCharacter emits the selected persona. It is a pure source.
func (s *Set) ConsistentCharacter(_ context.Context, in promptgraph.Input) promptgraph.Result {
	d := dataAs[promptgraph.ConsistentCharacterData](in.Data)
	if d.CharacterDescription == "" {
		return promptgraph.Failf(MsgNoCharacter)
	}
	return promptgraph.Ok(promptgraph.NodeOutput{
		Text:               d.CharacterDescription,
		PersonaDescription: d.CharacterDescription,
		PersonaName:        d.CharacterName,
	})
}

// TextOutput merges its inputs. It is a pure sink.
func (s *Set) TextOutput(_ context.Context, in promptgraph.Input) promptgraph.Result {
	return promptgraph.Ok(promptgraph.NodeOutput{Text: MergeText(in.Inputs)})
}

// InitialPrompt emits the node's text, rewritten around any personas
// connected to its adapter handle.
func (s *Set) InitialPrompt(ctx context.Context, in promptgraph.Input) promptgraph.Result {
	d := dataAs[promptgraph.InitialPromptData](in.Data)
	if strings.TrimSpace(d.Text) == "" {
		return promptgraph.Failf(MsgNoPromptText)
	}

	start := time.Now()
	text, err := s.injectPersonas(ctx, in, d.Text, d.MaxTokens)
	if err != nil {
		return promptgraph.Fail(promptgraph.NodeOutput{}, err)
	}
	return promptgraph.Ok(promptgraph.NodeOutput{Text: text, DurationMs: since(start)})
}

// PromptEnhancer expands the upstream text into a detailed image prompt,
// following the node's notes when present.
func (s *Set) PromptEnhancer(ctx context.Context, in promptgraph.Input) promptgraph.Result {
	d := dataAs[promptgraph.PromptEnhancerData](in.Data)
	upstream := MergeText(in.Inputs)
	if upstream == "" {
		return promptgraph.Failf(MsgNoEnhanceText)
	}

	tmpl, vars := prompt.Enhance, prompt.Vars{"text": upstream}
	if d.Notes != "" {
		tmpl, vars = prompt.EnhanceWithNotes, prompt.Vars{"text": upstream, "notes": d.Notes}
	}

	start := time.Now()
	enhanced, err := s.complete(ctx, in, tmpl, vars, d.MaxTokens)
	if err != nil {
		return promptgraph.Fail(promptgraph.NodeOutput{}, fmt.Errorf("enhancement failed: %w", err))
	}
	text, err := s.injectPersonas(ctx, in, enhanced, d.MaxTokens)
	if err != nil {
		return promptgraph.Fail(promptgraph.NodeOutput{Text: enhanced}, err)
	}
	return promptgraph.Ok(promptgraph.NodeOutput{Text: text, DurationMs: since(start)})
}

// Translator translates the upstream text. With no language selected the
// text passes through unchanged.
func (s *Set) Translator(ctx context.Context, in promptgraph.Input) promptgraph.Result {
	d := dataAs[promptgraph.TranslatorData](in.Data)
	upstream := MergeText(in.Inputs)
	if upstream == "" {
		return promptgraph.Failf(MsgNoTranslate)
	}
	if d.Language == "" {
		return promptgraph.Ok(promptgraph.NodeOutput{Text: upstream})
	}

	start := time.Now()
	text, err := s.complete(ctx, in, prompt.Translate, prompt.Vars{
		"text":     upstream,
		"language": LanguageName(d.Language),
	}, d.MaxTokens)
	if err != nil {
		return promptgraph.Fail(promptgraph.NodeOutput{}, fmt.Errorf("translation failed: %w", err))
	}
	return promptgraph.Ok(promptgraph.NodeOutput{Text: text, DurationMs: since(start)})
}

// StoryTeller spins a concept into an image prompt. The concept is the
// upstream text, or the node's idea when nothing is connected.
func (s *Set) StoryTeller(ctx context.Context, in promptgraph.Input) promptgraph.Result {
	d := dataAs[promptgraph.StoryTellerData](in.Data)
	concept := MergeText(in.Inputs)
	if concept == "" {
		concept = strings.TrimSpace(d.Idea)
	}
	if concept == "" {
		return promptgraph.Failf(MsgNoIdea)
	}

	start := time.Now()
	story, err := s.complete(ctx, in, prompt.StoryTeller, prompt.Vars{
		"text": concept,
		"tags": prompt.TagsClause(d.Tags),
	}, d.MaxTokens)
	if err != nil {
		return promptgraph.Fail(promptgraph.NodeOutput{}, fmt.Errorf("story generation failed: %w", err))
	}
	text, err := s.injectPersonas(ctx, in, story, d.MaxTokens)
	if err != nil {
		return promptgraph.Fail(promptgraph.NodeOutput{Text: story}, err)
	}
	return promptgraph.Ok(promptgraph.NodeOutput{Text: text, DurationMs: since(start)})
}

// GrammarFix proofreads the upstream text, optionally nudging its tone.
func (s *Set) GrammarFix(ctx context.Context, in promptgraph.Input) promptgraph.Result {
	d := dataAs[promptgraph.GrammarFixData](in.Data)
	upstream := MergeText(in.Inputs)
	if upstream == "" {
		return promptgraph.Failf(MsgNoGrammarText)
	}

	start := time.Now()
	text, err := s.complete(ctx, in, prompt.GrammarFix, prompt.Vars{
		"text":  upstream,
		"style": prompt.StyleClause(d.Style),
	}, d.MaxTokens)
	if err != nil {
		return promptgraph.Fail(promptgraph.NodeOutput{}, fmt.Errorf("grammar fix failed: %w", err))
	}
	return promptgraph.Ok(promptgraph.NodeOutput{Text: text, DurationMs: since(start)})
}

// Compressor shortens upstream text longer than the threshold; shorter
// text passes through.
func (s *Set) Compressor(ctx context.Context, in promptgraph.Input) promptgraph.Result {
	d := dataAs[promptgraph.CompressorData](in.Data)
	upstream := MergeText(in.Inputs)
	if upstream == "" {
		return promptgraph.Failf(MsgNoCompress)
	}
	if len(upstream) <= s.compressThreshold {
		return promptgraph.Ok(promptgraph.NodeOutput{Text: upstream})
	}

	start := time.Now()
	text, err := s.complete(ctx, in, prompt.Compress, prompt.Vars{"text": upstream}, d.MaxTokens)
	if err != nil {
		return promptgraph.Fail(promptgraph.NodeOutput{}, fmt.Errorf("compression failed: %w", err))
	}
	return promptgraph.Ok(promptgraph.NodeOutput{Text: text, DurationMs: since(start)})
}

// injectPersonas rewrites text around the personas on the node's adapter
// inputs. Without personas it returns text unchanged and makes no call.
func (s *Set) injectPersonas(ctx context.Context, in promptgraph.Input, text string, maxTokens int) (string, error) {
	personas := Personas(in.AdapterInputs)
	if len(personas) == 0 {
		return text, nil
	}

	out, err := s.complete(ctx, in, prompt.InjectPersona, prompt.Vars{
		"text":    text,
		"persona": describePersonas(personas),
	}, maxTokens)
	if err != nil {
		return "", fmt.Errorf("persona injection failed: %w", err)
	}
	return out, nil
}

// complete renders tmpl and sends it to the client for the node's
// resolved provider.
func (s *Set) complete(ctx context.Context, in promptgraph.Input, tmpl prompt.Template, vars prompt.Vars, maxTokens int) (string, error) {
	client, err := s.providers.Get(in.ProviderID)
	if err != nil {
		return "", err
	}
	text, err := tmpl.Render(vars)
	if err != nil {
		return "", err
	}

	req := llm.Prompt("", text)
	req.Model = in.Model
	req.MaxTokens = maxTokens

	resp, err := client.Complete(ctx, req)
	if err != nil {
		s.logger.Debug("completion failed",
			"node_id", in.NodeID,
			"provider", in.ProviderID,
			"template", tmpl.Name(),
			"error", err.Error(),
		)
		return "", err
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	s.logger.Debug("completion done",
		"node_id", in.NodeID,
		"provider", in.ProviderID,
		"template", tmpl.Name(),
		"tokens", resp.Usage.TotalTokens,
	)
	return content, nil
}

// dataAs returns the typed variant, or its zero value when the node
// carries different or no data.
func dataAs[T promptgraph.NodeData](d promptgraph.NodeData) T {
	v, _ := d.(T)
	return v
}

func since(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
