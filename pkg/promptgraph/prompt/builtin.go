package prompt

// Built-in templates used by the text executors.
var (
	Enhance = New("enhance", `You are an expert prompt engineer specializing in AI image generation prompts.

Take this simple prompt and transform it into a detailed, rich prompt for AI image generation. Add specific visual details, art style, composition, lighting, mood, and quality boosters. Keep the core subject and intent.

## ORIGINAL PROMPT:
${text}

Output ONLY the enhanced prompt, nothing else. Keep the output under 2500 characters.`)

	EnhanceWithNotes = New("enhance-with-notes", `You are an expert prompt engineer specializing in AI image generation prompts.

Take the following prompt and enhance it according to the instructions provided.

## ORIGINAL PROMPT:
${text}

## ENHANCEMENT INSTRUCTIONS:
${notes}

Apply the enhancement instructions to improve the original prompt. Keep the core subject and intent, but enrich it with the requested changes. Add specific visual details where appropriate.

Output ONLY the enhanced prompt, nothing else. Keep the output under 2500 characters.`)

	Translate = New("translate", `Translate the following text to ${language}. Output ONLY the translation, nothing else. Do not add explanations, notes, or formatting.

${text}`)

	// GrammarFix takes a style clause that is either empty or a full
	// sentence starting with a space (see StyleClause).
	GrammarFix = New("grammar-fix", `You are a proofreader. Fix all grammar, spelling, and punctuation errors in the following text.${style} Output ONLY the corrected text, no explanations, no notes, no extra formatting. Do NOT expand the text into a story or add new sentences. Preserve the original structure and length.

${text}`)

	Compress = New("compress", `Compress the following text to be shorter and more concise while preserving ALL information, details, and meaning. Remove redundancy and filler words. Output ONLY the compressed text, nothing else.

${text}`)

	// StoryTeller takes a tags clause that is either empty or starts with
	// a blank line (see TagsClause).
	StoryTeller = New("storyteller", `You are a wildly creative art director and visual storyteller. Your job is to take a simple concept and spin it into a vivid, unique AI image generation prompt.

RULES:
- Every time you receive the same concept, you MUST create a completely DIFFERENT interpretation: different angle, different mood, different composition, different style
- Be bold and surprising. Subvert expectations. Find unusual perspectives
- Include specific visual details: lighting, color palette, composition, texture, atmosphere
- Include an art style or medium (oil painting, cinematic photography, anime, watercolor, 3D render, etc.)
- Keep it as a single flowing prompt paragraph, no bullet points, no labels
- Output ONLY the prompt, nothing else. Keep the output under 2500 characters

CONCEPT: ${text}${tags}

Generate a fresh, creative image prompt:`)

	InjectPersona = New("inject-persona", `You are an expert prompt engineer specializing in AI image generation prompts.
Your task is to inject specific character appearance details into an existing prompt.

## CHARACTER APPEARANCE (use these physical traits):
${persona}

## ORIGINAL PROMPT:
${text}

## YOUR TASK:
Rewrite the original prompt so that any person, character, figure, woman, man, or human reference in it is replaced with the specific physical appearance described above. Follow these rules:

1. KEEP everything from the original prompt: the scene, setting, clothing, pose, action, lighting, mood, composition, art style, and all non-character details.
2. REPLACE any generic character description (e.g. "a woman", "a person", "a man", "a young girl") with the specific physical traits from the CHARACTER APPEARANCE section.
3. If the original prompt already has some character details (e.g. "a blonde woman"), override them with the CHARACTER APPEARANCE traits: hair color, skin tone, age, build, etc.
4. MERGE naturally. Do not just prepend the appearance. Weave the physical traits into the sentence where the character is mentioned.
5. If the original prompt has NO character/person reference at all, add the character naturally into the scene described.
6. Do NOT add clothing from the CHARACTER APPEARANCE, only physical traits (hair, skin, face, build, age). The original prompt's clothing/outfit descriptions should be preserved.
7. Do NOT identify anyone. Treat the appearance as fictional character traits.

Output ONLY the rewritten prompt, nothing else.`)
)

// StyleClause returns the optional tone instruction for GrammarFix.
func StyleClause(style string) string {
	if style == "" {
		return ""
	}
	return " After fixing errors, lightly adjust the tone to be more " + style +
		". Do NOT expand, rewrite, or add new content. Keep the same meaning and roughly the same length."
}

// TagsClause returns the optional style-tag section for StoryTeller.
func TagsClause(tags string) string {
	if tags == "" {
		return ""
	}
	return "\n\nSTYLE TAGS to weave in: " + tags
}
