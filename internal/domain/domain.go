package domain

// Turn roles. System turns may appear in a conversation but individual
// provider normalizers decide whether they are forwarded.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// PartType discriminates ContentPart variants.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// ContentPart is one element of a multi-part turn: either plain text or a
// reference to an inline image carried as a data URI
// (data:<mime>;base64,<payload>).
type ContentPart struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	ImageURI string   `json:"image_uri,omitempty"`
}

// Turn represents a single conversational message in the unified schema.
// Parts takes precedence over Content when non-empty.
type Turn struct {
	Role    string        `json:"role"`
	Content string        `json:"content"`
	Parts   []ContentPart `json:"parts,omitempty"`
}

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000

	minTemperature = 0.0
	maxTemperature = 2.0
	minMaxTokens   = 1
	maxMaxTokens   = 4000
)

// GenerationOptions carries caller-supplied tuning knobs. Zero values mean
// "use the default"; unknown options supplied upstream are ignored long
// before they reach this struct.
type GenerationOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// Normalized returns a copy with defaults applied and values clamped to the
// supported ranges (temperature 0.0-2.0, max tokens 1-4000).
func (o GenerationOptions) Normalized() GenerationOptions {
	out := o
	if out.Temperature == 0 {
		out.Temperature = DefaultTemperature
	}
	if out.Temperature < minTemperature {
		out.Temperature = minTemperature
	}
	if out.Temperature > maxTemperature {
		out.Temperature = maxTemperature
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = DefaultMaxTokens
	}
	if out.MaxTokens < minMaxTokens {
		out.MaxTokens = minMaxTokens
	}
	if out.MaxTokens > maxMaxTokens {
		out.MaxTokens = maxMaxTokens
	}
	return out
}

// Usage records provider-reported token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerationResult is the outcome of a non-streaming generation. Model holds
// the literal provider model id actually used, which may differ from the
// alias the caller supplied.
type GenerationResult struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   *Usage `json:"usage,omitempty"`
}
