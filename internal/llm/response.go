package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	// UnexpectedFormatText replaces a valid body with none of the known shapes.
	UnexpectedFormatText = "The AI model returned an unexpected response format."
	// ParseFailureText replaces a body that is not a JSON object.
	ParseFailureText = "Error parsing the AI model response."
)

// Shape identifies which field of the response body carried the text.
type Shape int

const (
	ShapeUnrecognized Shape = iota
	ShapeGeneration
	ShapeCompletion
	ShapeOutputs
)

func (s Shape) String() string {
	switch s {
	case ShapeGeneration:
		return "generation"
	case ShapeCompletion:
		return "completion"
	case ShapeOutputs:
		return "outputs"
	default:
		return "unrecognized"
	}
}

// Generation is the normalized model output.
type Generation struct {
	Shape Shape
	Text  string
}

// Recognized reports whether Text came from the model rather than a sentinel.
func (g Generation) Recognized() bool {
	return g.Shape != ShapeUnrecognized
}

// Normalize extracts the generated text from a raw response body.
//
// Precedence is generation, then completion, then outputs[0].text; empty
// strings count as absent. A body with none of them is not an error: the
// result is ShapeUnrecognized with UnexpectedFormatText. Only a body that
// cannot be decoded as a JSON object fails, with an ErrParse error; the
// returned Generation then carries ParseFailureText for the caller to show.
func Normalize(raw []byte) (Generation, error) {
	if !utf8.Valid(raw) {
		raw = bytes.ToValidUTF8(raw, []byte("\uFFFD"))
	}

	var body *providerResponseBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return parseFailure(err)
	}
	if body == nil {
		return parseFailure(errors.New("response body is not a JSON object"))
	}

	switch {
	case nonEmpty(body.Generation):
		return Generation{Shape: ShapeGeneration, Text: strings.TrimSpace(*body.Generation)}, nil
	case nonEmpty(body.Completion):
		return Generation{Shape: ShapeCompletion, Text: strings.TrimSpace(*body.Completion)}, nil
	case len(body.Outputs) > 0 && nonEmpty(body.Outputs[0].Text):
		return Generation{Shape: ShapeOutputs, Text: strings.TrimSpace(*body.Outputs[0].Text)}, nil
	default:
		return Generation{Shape: ShapeUnrecognized, Text: UnexpectedFormatText}, nil
	}
}

func parseFailure(err error) (Generation, error) {
	return Generation{Shape: ShapeUnrecognized, Text: ParseFailureText},
		&Error{Kind: ErrParse, Message: "decode response body", Err: err}
}

func nonEmpty(s *string) bool {
	return s != nil && *s != ""
}
