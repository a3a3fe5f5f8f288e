// Package gemini implements an intent classifier backed by Google's Gemini API.
// It refines the rankings of the local engine when engine.classifier is "gemini".
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/edgard/nlud/internal/config"
	"github.com/edgard/nlud/internal/engine"
	"github.com/edgard/nlud/internal/logger"
	"github.com/edgard/nlud/internal/nlu"
	"github.com/edgard/nlud/internal/resilience"
)

// Client classifies utterances with Gemini. It implements engine.Classifier.
type Client struct {
	genaiClient      *genai.Client
	log              *slog.Logger
	contentConfig    *genai.GenerateContentConfig
	defaultModelName string
	maxRetries       int
	retryDelay       time.Duration
	timeout          time.Duration
	breaker          *resilience.CircuitBreaker
}

var _ engine.Classifier = (*Client)(nil)

// NewClient creates a new Gemini classifier with the provided configuration.
func NewClient(
	ctx context.Context,
	cfg config.GeminiConfig,
	log *slog.Logger,
) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if log == nil {
		log = logger.Discard()
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	baseCfg := &genai.GenerateContentConfig{
		Temperature:      &cfg.Temperature,
		ResponseMIMEType: "application/json",
		ResponseSchema:   classificationSchema,
	}

	clientLog := log.With("component", "gemini_client")
	breaker := resilience.NewCircuitBreaker(resilience.Config{
		Name:        "gemini",
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	}, log)
	clientLog.Info("Gemini classifier initialized successfully", "model", cfg.ModelName)
	return &Client{
		genaiClient:      gi,
		log:              clientLog,
		contentConfig:    baseCfg,
		defaultModelName: cfg.ModelName,
		maxRetries:       cfg.MaxRetries,
		retryDelay:       time.Duration(cfg.RetryDelaySeconds) * time.Second,
		timeout:          cfg.Timeout,
		breaker:          breaker,
	}, nil
}

var classificationSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"intent":     {Type: genai.TypeString, Description: "Name of the chosen intent, or \"none\"."},
		"confidence": {Type: genai.TypeNumber, Description: "Confidence of the choice between 0 and 1."},
	},
	Required: []string{"intent", "confidence"},
}

type classification struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Classify asks Gemini for the intent of req.Text among req.Intents.
func (c *Client) Classify(ctx context.Context, req engine.ClassifyRequest) (nlu.IntentScore, error) {
	c.log.DebugContext(ctx, "Classifying utterance", "language", req.Language, "candidates", len(req.Intents))

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	prompt, err := buildPrompt(req)
	if err != nil {
		return nlu.IntentScore{}, err
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	copyCfg := *c.contentConfig
	copyCfg.SystemInstruction = &genai.Content{
		Parts: []*genai.Part{{Text: fmt.Sprintf(ClassifierSystemInstruction, req.Language)}},
	}

	var resp *genai.GenerateContentResponse
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		var genErr error
		resp, genErr = c.generateContentWithRetries(ctx, c.defaultModelName, contents, &copyCfg)
		return genErr
	})
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini classification API call failed", "error", err)
		return nlu.IntentScore{}, fmt.Errorf("failed to classify utterance: %w", err)
	}

	text, err := c.extractTextFromResponse(ctx, resp)
	if err != nil {
		return nlu.IntentScore{}, err
	}

	return parseClassification(text)
}

func buildPrompt(req engine.ClassifyRequest) (string, error) {
	candidates, err := json.MarshalIndent(req.Intents, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode candidate intents: %w", err)
	}
	return fmt.Sprintf(ClassifierPromptTemplate, candidates, req.Text), nil
}

func parseClassification(text string) (nlu.IntentScore, error) {
	var out classification
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &out); err != nil {
		return nlu.IntentScore{}, fmt.Errorf("invalid classification JSON received: %w", err)
	}
	if out.Intent == "" {
		return nlu.IntentScore{}, fmt.Errorf("classification has no intent")
	}
	out.Confidence = min(max(out.Confidence, 0), 1)
	return nlu.IntentScore{Name: out.Intent, Confidence: out.Confidence}, nil
}

func (c *Client) generateContentWithRetries(ctx context.Context, modelName string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.genaiClient.Models.GenerateContent(ctx, modelName, contents, cfg)
		if err == nil {
			return resp, nil
		}

		c.log.WarnContext(ctx, "Gemini API call failed, checking for retry", "attempt", i+1, "max_retries", c.maxRetries, "error", err)

		var genAiAPIError *genai.APIError
		if errors.As(err, &genAiAPIError) && (genAiAPIError.Code == 500 || genAiAPIError.Code == 503) { // Retriable HTTP codes
			if i < c.maxRetries {
				c.log.InfoContext(ctx, "Retrying Gemini API call due to retriable APIError", "delay", c.retryDelay, "code", genAiAPIError.Code)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(c.retryDelay):
				}
				continue
			}
			c.log.ErrorContext(ctx, "Gemini API call failed after max retries with APIError", "error", err, "code", genAiAPIError.Code)
			return nil, fmt.Errorf("gemini API call failed after %d retries (APIError code %d): %w", c.maxRetries, genAiAPIError.Code, err)
		}

		c.log.ErrorContext(ctx, "Gemini API call failed with non-retriable error", "error", err)
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return nil, err
}

func (c *Client) extractTextFromResponse(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini request blocked", "reason", reasonMsg)
		return "", fmt.Errorf("classification blocked by safety filter: %s", reasonMsg)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing candidates or content", "finish_reason", finishReason)
		return "", fmt.Errorf("classification returned no content, finish reason: %s", finishReason)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("classification returned empty text")
	}
	return text, nil
}
