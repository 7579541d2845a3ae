package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/callwhen/callwhen/internal/domain"
	"golang.org/x/time/rate"
)

// VoiceNotifier places calls through the voice gateway's REST API. Every call
// costs real money, so outbound requests go through a token-bucket limiter in
// addition to the retry budget upstream.
type VoiceNotifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewVoiceNotifier builds a gateway client. callsPerMinute bounds sustained
// outbound call rate; the per-request deadline comes from the caller's ctx.
func NewVoiceNotifier(baseURL, apiKey string, callsPerMinute int) *VoiceNotifier {
	return &VoiceNotifier{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{}, // no global timeout, the executor sets one per call
		limiter: rate.NewLimiter(rate.Limit(float64(callsPerMinute)/60.0), callsPerMinute),
	}
}

type callRequest struct {
	To      string  `json:"to"`
	Message string  `json:"message"`
	Voice   string  `json:"voice,omitempty"`
	Speed   float64 `json:"speed,omitempty"`
	Volume  float64 `json:"volume,omitempty"`
}

type callResponse struct {
	CallID string `json:"call_id"`
	Error  string `json:"error"`
}

func (n *VoiceNotifier) Invoke(ctx context.Context, p domain.CallPayload) (string, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(callRequest{
		To:      p.Target,
		Message: p.Message,
		Voice:   p.Voice,
		Speed:   p.Speed,
		Volume:  p.Volume,
	})
	if err != nil {
		return "", fmt.Errorf("encode call request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/v1/calls", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build call request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.apiKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("place call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var cr callResponse
		if err := json.Unmarshal(payload, &cr); err != nil {
			return "", fmt.Errorf("decode call response: %w", err)
		}
		return cr.CallID, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		// Text matters: "rate limit" is a retryable keyword.
		return "", fmt.Errorf("gateway rate limit exceeded (status 429)")

	case resp.StatusCode == http.StatusPaymentRequired:
		return "", fmt.Errorf("gateway quota exceeded (status 402)")

	default:
		var cr callResponse
		_ = json.Unmarshal(payload, &cr)
		if cr.Error != "" {
			return "", fmt.Errorf("gateway error (status %d): %s", resp.StatusCode, cr.Error)
		}
		return "", fmt.Errorf("gateway error (status %d)", resp.StatusCode)
	}
}
