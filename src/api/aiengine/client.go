// Package aiengine is the HTTP client for the inference engine that turns
// instructions into intents and execution plans. Every call is a single
// attempt; failures come back as *apierr.UpstreamError naming the stage.
package aiengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/stake-plus/stratomai-agents/src/api/apierr"
	"github.com/stake-plus/stratomai-agents/src/api/types"
)

const (
	pathParse      = "/ai/parse-instruction"
	pathPlan       = "/ai/generate-plan"
	pathClassify   = "/ai/classify-intent"
	pathEntities   = "/ai/extract-entities"
	pathSuggest    = "/ai/suggest-agent"
	pathHealth     = "/health"
	maxBodyBytes   = 4 << 20
	defaultTimeout = 30 * time.Second
)

// InstructionRequest is the engine's common input shape.
type InstructionRequest struct {
	Instruction string         `json:"instruction"`
	UserID      string         `json:"user_id"`
	AgentID     *string        `json:"agent_id,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

// PlanContext threads the parsed intent into plan generation.
type PlanContext struct {
	ParsedIntent types.ParsedIntent `json:"parsed_intent"`
}

type PlanRequest struct {
	Instruction string      `json:"instruction"`
	UserID      string      `json:"user_id"`
	Context     PlanContext `json:"context"`
}

type AgentSuggestion struct {
	AgentID    string  `json:"agent_id"`
	AgentName  string  `json:"agent_name"`
	AgentRole  string  `json:"agent_role"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default client, e.g. to add transport middleware.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient targets the engine at baseURL. A non-positive timeout falls back
// to 30s.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// ParseInstruction asks the engine for the structured intent of an instruction.
func (c *Client) ParseInstruction(ctx context.Context, req InstructionRequest) (types.ParsedIntent, error) {
	body, err := c.post(ctx, apierr.StageParsing, pathParse, req)
	if err != nil {
		return nil, err
	}
	return types.ParsedIntent(body), nil
}

// GeneratePlan asks the engine for an execution plan given the parsed intent.
func (c *Client) GeneratePlan(ctx context.Context, req PlanRequest) (types.ExecutionPlan, error) {
	if len(req.Context.ParsedIntent) == 0 {
		return nil, &apierr.UpstreamError{Stage: apierr.StagePlanning, Err: errors.New("missing parsed intent")}
	}
	body, err := c.post(ctx, apierr.StagePlanning, pathPlan, req)
	if err != nil {
		return nil, err
	}
	return types.ExecutionPlan(body), nil
}

func (c *Client) ClassifyIntent(ctx context.Context, req InstructionRequest) (json.RawMessage, error) {
	return c.post(ctx, apierr.StageClassify, pathClassify, req)
}

func (c *Client) ExtractEntities(ctx context.Context, req InstructionRequest) (json.RawMessage, error) {
	return c.post(ctx, apierr.StageEntities, pathEntities, req)
}

func (c *Client) SuggestAgents(ctx context.Context, req InstructionRequest) ([]AgentSuggestion, error) {
	body, err := c.post(ctx, apierr.StageSuggestion, pathSuggest, req)
	if err != nil {
		return nil, err
	}
	var out []AgentSuggestion
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &apierr.UpstreamError{Stage: apierr.StageSuggestion, Err: fmt.Errorf("decode suggestions: %w", err)}
	}
	return out, nil
}

// Health returns the engine's /health document.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathHealth, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req, "health")
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, stage apierr.Stage, path string, payload any) (json.RawMessage, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, &apierr.UpstreamError{Stage: stage, Err: fmt.Errorf("encode request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, &apierr.UpstreamError{Stage: stage, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req, stage)
	if err != nil {
		var up *apierr.UpstreamError
		if errors.As(err, &up) {
			return nil, err
		}
		return nil, &apierr.UpstreamError{Stage: stage, Err: err}
	}
	return body, nil
}

func (c *Client) do(req *http.Request, stage apierr.Stage) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apierr.UpstreamError{
			Stage:      stage,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("engine responded: %s", truncate(body, 256)),
		}
	}
	if !json.Valid(body) {
		return nil, &apierr.UpstreamError{Stage: stage, StatusCode: resp.StatusCode, Err: errors.New("response is not valid JSON")}
	}
	return json.RawMessage(body), nil
}

// truncate shortens b to at most n bytes without splitting a rune.
func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
