package nli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/truthgraph/truthgraph/internal/model"
)

const systemPrompt = `You are a natural-language-inference classifier.
For each numbered (premise, hypothesis) pair, estimate the probability that
the premise ENTAILS the hypothesis, CONTRADICTS it, or is NEUTRAL.
The three probabilities of each pair must sum to 1.
Respond with ONLY a JSON array, one object per pair in input order:
[{"entail": 0.0, "contradict": 0.0, "neutral": 0.0}, ...]`

// Client implements Scorer against an OpenAI-compatible chat endpoint.
// One request scores a whole batch of pairs.
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
}

// NewClient creates a new NLI client from configuration
func NewClient(cfg model.NLIConfig) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("nli model name is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 5
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// pairProbs is the wire format of one classification
type pairProbs struct {
	Entail     float64 `json:"entail"`
	Contradict float64 `json:"contradict"`
	Neutral    float64 `json:"neutral"`
}

// Score classifies a batch of pairs with a single chat completion
func (c *Client) Score(ctx context.Context, pairs []Pair) ([]model.NLIResult, error) {
	if len(pairs) == 0 {
		return []model.NLIResult{}, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctxWithTimeout, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildBatchPrompt(pairs)},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("nli: empty response")
	}

	probs, err := parseResponse(resp.Choices[0].Message.Content, len(pairs))
	if err != nil {
		return nil, err
	}

	results := make([]model.NLIResult, len(pairs))
	for i, p := range probs {
		results[i] = model.NLIResult{
			PEntail:     p.Entail,
			PContradict: p.Contradict,
			PNeutral:    p.Neutral,
		}
	}

	return results, nil
}

// buildBatchPrompt numbers the pairs so the model keeps input order
func buildBatchPrompt(pairs []Pair) string {
	var b strings.Builder
	for i, p := range pairs {
		fmt.Fprintf(&b, "Pair %d\nPremise: %s\nHypothesis: %s\n\n", i+1, p.EvidenceText, p.ClaimText)
	}
	return b.String()
}

// parseResponse extracts the probability array, tolerating code fences
func parseResponse(content string, want int) ([]pairProbs, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var probs []pairProbs
	if err := json.Unmarshal([]byte(content), &probs); err != nil {
		return nil, fmt.Errorf("nli: parse response: %w", err)
	}
	if len(probs) != want {
		return nil, fmt.Errorf("nli: got %d classifications for %d pairs", len(probs), want)
	}
	return probs, nil
}

// classifyError maps provider errors onto the package sentinel
func classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode >= 500 || apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 404 {
			return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
	}

	return fmt.Errorf("nli request: %w", err)
}
