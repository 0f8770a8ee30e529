// Package prompt renders user messages into the instruction template expected
// by Llama 3 instruct models.
package prompt

const (
	userTurnPrefix = "<|begin_of_text|><|start_header_id|>user<|end_header_id|>\n\n"
	userTurnSuffix = "<|eot_id|>"
	assistantTurn  = "<|start_header_id|>assistant<|end_header_id|>\n\n"
)

// Format wraps message in a single user turn followed by an empty assistant
// turn. The message is inserted as is.
func Format(message string) string {
	return userTurnPrefix + message + userTurnSuffix + assistantTurn
}
