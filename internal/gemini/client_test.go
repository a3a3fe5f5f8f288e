package gemini

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/edgard/nlud/internal/config"
	"github.com/edgard/nlud/internal/engine"
	"github.com/edgard/nlud/internal/logger"
)

func TestParseClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		text       string
		intent     string
		confidence float64
		wantErr    bool
	}{
		{"valid", `{"intent":"greet","confidence":0.8}`, "greet", 0.8, false},
		{"clamped", ` {"intent":"none","confidence":3} `, "none", 1, false},
		{"negative", `{"intent":"greet","confidence":-1}`, "greet", 0, false},
		{"empty intent", `{"intent":"","confidence":0.5}`, "", 0, true},
		{"not json", `greet`, "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseClassification(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.intent, got.Name)
			assert.InDelta(t, tt.confidence, got.Confidence, 1e-9)
		})
	}
}

func TestBuildPromptListsCandidates(t *testing.T) {
	t.Parallel()

	prompt, err := buildPrompt(engine.ClassifyRequest{
		Text:     "hello there",
		Language: "en",
		Intents:  []engine.IntentExamples{{Name: "greet", Utterances: []string{"hi"}}},
	})
	require.NoError(t, err)
	assert.Contains(t, prompt, `"name": "greet"`)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(prompt), "hello there"))
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewClient(context.Background(), config.GeminiConfig{ModelName: "m"}, logger.Discard())
	assert.Error(t, err)
}

func TestExtractTextFromResponse(t *testing.T) {
	t.Parallel()

	c := &Client{log: logger.Discard()}

	blocked := &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
	}
	_, err := c.extractTextFromResponse(context.Background(), blocked)
	assert.ErrorContains(t, err, "blocked")

	_, err = c.extractTextFromResponse(context.Background(), &genai.GenerateContentResponse{})
	assert.ErrorContains(t, err, "no content")

	ok := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(`{"intent":"greet","confidence":1}`, genai.RoleModel)}},
	}
	text, err := c.extractTextFromResponse(context.Background(), ok)
	require.NoError(t, err)
	assert.Contains(t, text, "greet")
}
