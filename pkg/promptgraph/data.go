package promptgraph

import (
	"encoding/json"
)

// NodeData is the typed configuration of a node. There is one variant per
// node type; RawData carries the fields of types without a variant.
//
// Executors type-switch on the variant instead of probing string keys.
type NodeData interface {
	// Kind returns the node type this variant configures.
	Kind() NodeType

	// Settings returns the fields shared by all variants.
	Settings() Base

	// Clone returns an independent copy.
	Clone() NodeData
}

// Base holds fields common to every node: a display label and an optional
// provider/model override.
type Base struct {
	Label      string `json:"label,omitempty"`
	ProviderID string `json:"providerId,omitempty"`
	Model      string `json:"model,omitempty"`
}

// Settings implements NodeData for every variant that embeds Base.
func (b Base) Settings() Base { return b }

// InitialPromptData configures an initialPrompt node.
type InitialPromptData struct {
	Base
	Text      string `json:"text"`
	MaxTokens int    `json:"maxTokens,omitempty"`
}

func (InitialPromptData) Kind() NodeType    { return TypeInitialPrompt }
func (d InitialPromptData) Clone() NodeData { return d }

// PromptEnhancerData configures a promptEnhancer node.
type PromptEnhancerData struct {
	Base
	Notes     string `json:"notes,omitempty"`
	MaxTokens int    `json:"maxTokens,omitempty"`
}

func (PromptEnhancerData) Kind() NodeType    { return TypePromptEnhancer }
func (d PromptEnhancerData) Clone() NodeData { return d }

// TranslatorData configures a translator node. An empty Language passes
// the input through unchanged.
type TranslatorData struct {
	Base
	Language  string `json:"language,omitempty"`
	MaxTokens int    `json:"maxTokens,omitempty"`
}

func (TranslatorData) Kind() NodeType    { return TypeTranslator }
func (d TranslatorData) Clone() NodeData { return d }

// ImageDescriberData configures an imageDescriber node.
type ImageDescriberData struct {
	Base
	Image string `json:"image,omitempty"`
}

func (ImageDescriberData) Kind() NodeType    { return TypeImageDescriber }
func (d ImageDescriberData) Clone() NodeData { return d }

// TextOutputData configures a textOutput sink. Text is filled in from the
// node's output after a run.
type TextOutputData struct {
	Base
	Text string `json:"text,omitempty"`
}

func (TextOutputData) Kind() NodeType    { return TypeTextOutput }
func (d TextOutputData) Clone() NodeData { return d }

// ConsistentCharacterData configures a persona source.
type ConsistentCharacterData struct {
	Base
	CharacterName        string `json:"characterName,omitempty"`
	CharacterDescription string `json:"characterDescription,omitempty"`
}

func (ConsistentCharacterData) Kind() NodeType    { return TypeConsistentCharacter }
func (d ConsistentCharacterData) Clone() NodeData { return d }

// StoryTellerData configures a storyTeller node.
type StoryTellerData struct {
	Base
	Idea      string `json:"idea,omitempty"`
	Tags      string `json:"tags,omitempty"`
	MaxTokens int    `json:"maxTokens,omitempty"`
}

func (StoryTellerData) Kind() NodeType    { return TypeStoryTeller }
func (d StoryTellerData) Clone() NodeData { return d }

// GrammarFixData configures a grammarFix node.
type GrammarFixData struct {
	Base
	Style     string `json:"style,omitempty"`
	MaxTokens int    `json:"maxTokens,omitempty"`
}

func (GrammarFixData) Kind() NodeType    { return TypeGrammarFix }
func (d GrammarFixData) Clone() NodeData { return d }

// CompressorData configures a compressor node.
type CompressorData struct {
	Base
	MaxTokens int `json:"maxTokens,omitempty"`
}

func (CompressorData) Kind() NodeType    { return TypeCompressor }
func (d CompressorData) Clone() NodeData { return d }

// ImageGeneratorData configures an imageGenerator node.
type ImageGeneratorData struct {
	Base
	Prompt          string `json:"prompt,omitempty"`
	ImageProviderID string `json:"imageProviderId,omitempty"`
	ImageModel      string `json:"imageModel,omitempty"`
	Width           int    `json:"width,omitempty"`
	Height          int    `json:"height,omitempty"`
}

func (ImageGeneratorData) Kind() NodeType    { return TypeImageGenerator }
func (d ImageGeneratorData) Clone() NodeData { return d }

// PersonasReplacerData configures a personasReplacer node.
type PersonasReplacerData struct {
	Base
	Image string `json:"image,omitempty"`
}

func (PersonasReplacerData) Kind() NodeType    { return TypePersonasReplacer }
func (d PersonasReplacerData) Clone() NodeData { return d }

// GroupData configures a layout container.
type GroupData struct {
	Base
}

func (GroupData) Kind() NodeType    { return TypeGroup }
func (d GroupData) Clone() NodeData { return d }

// RawData holds the data of a node type without a typed variant, such as
// comment or annotation nodes.
type RawData struct {
	Type   NodeType
	Fields map[string]any
}

func (d RawData) Kind() NodeType { return d.Type }

// Settings reads the common fields out of the raw map.
func (d RawData) Settings() Base {
	str := func(key string) string {
		s, _ := d.Fields[key].(string)
		return s
	}
	return Base{Label: str("label"), ProviderID: str("providerId"), Model: str("model")}
}

// Clone copies the top level of the field map. Nested values are shared.
func (d RawData) Clone() NodeData {
	fields := make(map[string]any, len(d.Fields))
	for k, v := range d.Fields {
		fields[k] = v
	}
	return RawData{Type: d.Type, Fields: fields}
}

// MarshalJSON encodes the raw fields.
func (d RawData) MarshalJSON() ([]byte, error) {
	if d.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d.Fields)
}

var dataDecoders = map[NodeType]func([]byte) (NodeData, error){
	TypeInitialPrompt:       decodeAs[InitialPromptData],
	TypePromptEnhancer:      decodeAs[PromptEnhancerData],
	TypeTranslator:          decodeAs[TranslatorData],
	TypeImageDescriber:      decodeAs[ImageDescriberData],
	TypeTextOutput:          decodeAs[TextOutputData],
	TypeConsistentCharacter: decodeAs[ConsistentCharacterData],
	TypeStoryTeller:         decodeAs[StoryTellerData],
	TypeGrammarFix:          decodeAs[GrammarFixData],
	TypeCompressor:          decodeAs[CompressorData],
	TypeImageGenerator:      decodeAs[ImageGeneratorData],
	TypePersonasReplacer:    decodeAs[PersonasReplacerData],
	TypeGroup:               decodeAs[GroupData],
}

// DecodeNodeData builds the data variant for a node type from its JSON.
// Unknown types decode into RawData.
func DecodeNodeData(t NodeType, raw []byte) (NodeData, error) {
	if decode, ok := dataDecoders[t]; ok {
		return decode(raw)
	}
	fields := make(map[string]any)
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
	}
	return RawData{Type: t, Fields: fields}, nil
}

func decodeAs[T NodeData](raw []byte) (NodeData, error) {
	var v T
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
	}
	return v, nil
}
