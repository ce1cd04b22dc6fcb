// Package wire implements the token-delimited text form of envelopes. A wire
// document is one or more frames, each shaped as
//
//	<|start|> HEADER <|message|> BODY TERMINATOR
//
// where the terminator is <|end|>, <|call|>, or <|return|> and the header is
//
//	role [ <|channel|> name [ to=recipient ] ] [ <|constrain|> contentType ]
//
// Parse turns wire text into an envelope applying the channel and content
// type inference rules; Render emits wire text for an envelope such that the
// two functions round-trip (up to defaulted content types, outer CR/LF
// stripping of text bodies, and termination being dropped for roles other
// than assistant commentary).
package wire

// Wire tokens. Matching is literal, case-sensitive, ordinal.
const (
	TokenStart     = "<|start|>"
	TokenMessage   = "<|message|>"
	TokenChannel   = "<|channel|>"
	TokenConstrain = "<|constrain|>"
	TokenEnd       = "<|end|>"
	TokenCall      = "<|call|>"
	TokenReturn    = "<|return|>"
)
