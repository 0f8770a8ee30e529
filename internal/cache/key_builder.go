package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"bedrock-chat-gateway/internal/llm"
)

type keyMaterial struct {
	Model       string   `json:"model"`
	MaxGenLen   int      `json:"max_gen_len"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Prompt      string   `json:"prompt"`
}

// BuildExactCacheKey hashes everything that influences the model output, so
// two requests share a key only when the provider would see the same call.
// versionID lets a deploy invalidate every earlier entry.
func BuildExactCacheKey(
	modelID string,
	versionID string,
	params llm.GenerationParams,
	prompt string,
) (ExactCacheKey, error) {
	modelID = strings.TrimSpace(modelID)

	body, err := json.Marshal(keyMaterial{
		Model:       modelID,
		MaxGenLen:   params.MaxGenLen,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		Prompt:      prompt,
	})
	if err != nil {
		return ExactCacheKey{}, err
	}

	sum := sha256.Sum256(body)

	return ExactCacheKey{
		ModelID:   modelID,
		VersionID: strings.TrimSpace(versionID),
		Hash:      hex.EncodeToString(sum[:]),
	}, nil
}
