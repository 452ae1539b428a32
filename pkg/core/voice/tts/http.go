package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPProvider implements the Provider interface against a synthesis
// service that accepts JSON and returns raw audio bytes.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTP creates an HTTP TTS provider.
func NewHTTP(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// NewHTTPWithClient creates an HTTP TTS provider with a custom HTTP client.
func NewHTTPWithClient(baseURL, apiKey string, client *http.Client) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: client,
	}
}

// Name returns the provider identifier.
func (p *HTTPProvider) Name() string {
	return "http"
}

type synthesizeRequest struct {
	Text         string  `json:"text"`
	Voice        string  `json:"voice,omitempty"`
	Speed        float64 `json:"speed,omitempty"`
	Encoding     string  `json:"encoding"`
	SampleRateHz int     `json:"sample_rate"`
}

// Synthesize renders the text and returns the raw audio bytes.
func (p *HTTPProvider) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}

	encoding := opts.Encoding
	if encoding == "" {
		encoding = "mulaw"
	}
	sampleRate := opts.SampleRateHz
	if sampleRate == 0 {
		sampleRate = 8000
	}

	body, err := json.Marshal(synthesizeRequest{
		Text:         text,
		Voice:        opts.Voice,
		Speed:        opts.Speed,
		Encoding:     encoding,
		SampleRateHz: sampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tts error %d: %s", resp.StatusCode, string(errBody))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("empty synthesis result")
	}

	return &Synthesis{
		Audio:        audioData,
		Encoding:     encoding,
		SampleRateHz: sampleRate,
	}, nil
}
