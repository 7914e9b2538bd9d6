// Package message defines the request and response types of the render API.
package message

// ResponseMode controls which outputs the caller wants back.
type ResponseMode string

const (
	// ResponseModeText returns the display text and short text only.
	ResponseModeText ResponseMode = "text"

	// ResponseModeSSML returns the spoken SSML only.
	ResponseModeSSML ResponseMode = "ssml"

	// ResponseModeTextSSML returns both text and SSML. It is the default.
	ResponseModeTextSSML ResponseMode = "text+ssml"
)

// RenderRequest asks for one phrase to be rendered.
type RenderRequest struct {
	// ID identifies the request in logs and in the result. Generated when empty.
	ID string `json:"id,omitempty"`

	// Pattern is the phrase name, matched case-insensitively.
	Pattern string `json:"pattern"`

	// Locale is a BCP-47 tag (e.g., "en-US"). Defaults to the configured locale.
	Locale string `json:"locale,omitempty"`

	// Substitutions are the slot values, keyed by tag name.
	Substitutions map[string]any `json:"substitutions,omitempty"`

	// Variants are extra variant constraints (e.g., {"formality": "casual"}).
	Variants map[string]string `json:"variants,omitempty"`

	// PhraseNum picks a phrase variant deterministically. Random when nil.
	PhraseNum *int `json:"phrase_num,omitempty"`

	// ResponseMode is "text", "ssml", or "text+ssml" (default).
	ResponseMode ResponseMode `json:"response_mode,omitempty"`

	ClientID string `json:"client_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`

	// Debug logs substitutions and transformer effects for this request.
	Debug bool `json:"debug,omitempty"`
}

// RenderResult is the outcome of a render request.
type RenderResult struct {
	// RequestID is the id of the request that produced this result.
	RequestID string `json:"request_id"`

	Pattern string `json:"pattern"`
	Locale  string `json:"locale"`

	// Text is the display text. Populated when response_mode includes text.
	Text string `json:"text,omitempty"`

	// ShortText is the abbreviated display text, when the phrase defines one.
	ShortText string `json:"short_text,omitempty"`

	// Spoken is the SSML document. Populated when response_mode includes ssml.
	Spoken string `json:"spoken,omitempty"`

	// ExtraFields are free-form phrase properties such as Image.
	ExtraFields map[string]string `json:"extra_fields,omitempty"`

	// Error is set if the request could not be rendered.
	Error string `json:"error,omitempty"`
}

// WantsText reports whether m includes the text outputs.
func (m ResponseMode) WantsText() bool {
	return m == ResponseModeText || m == ResponseModeTextSSML
}

// WantsSSML reports whether m includes the spoken output.
func (m ResponseMode) WantsSSML() bool {
	return m == ResponseModeSSML || m == ResponseModeTextSSML
}

// Valid reports whether m is a known mode. The empty mode is valid and means
// the default.
func (m ResponseMode) Valid() bool {
	switch m {
	case "", ResponseModeText, ResponseModeSSML, ResponseModeTextSSML:
		return true
	}
	return false
}
