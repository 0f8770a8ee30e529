package llm

// Request body sent to InvokeModel (Llama-style text generation).
type providerInvokeRequest struct {
	Prompt      string   `json:"prompt"`
	MaxGenLen   int      `json:"max_gen_len"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
}

type providerOutput struct {
	Text *string `json:"text"`
}

// Response body as returned by the different model families. Only one of the
// fields is expected per call.
type providerResponseBody struct {
	Generation *string          `json:"generation"`
	Completion *string          `json:"completion"`
	Outputs    []providerOutput `json:"outputs"`
}
