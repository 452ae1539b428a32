package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPProvider implements the Provider interface against an
// understanding service with one JSON endpoint per operation.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTP creates an HTTP NLU provider.
func NewHTTP(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// NewHTTPWithClient creates an HTTP NLU provider with a custom HTTP client.
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

// ExtractIntent pulls job details out of a transcript.
func (p *HTTPProvider) ExtractIntent(ctx context.Context, transcript string, prior *IntentRecord) (*IntentRecord, error) {
	req := struct {
		Transcript string        `json:"transcript"`
		Prior      *IntentRecord `json:"prior,omitempty"`
	}{Transcript: transcript, Prior: prior}

	var out IntentRecord
	if err := p.post(ctx, "/v1/intent", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExtractName pulls a person's name out of a transcript.
func (p *HTTPProvider) ExtractName(ctx context.Context, transcript string) (string, float64, error) {
	req := struct {
		Transcript string `json:"transcript"`
	}{Transcript: transcript}

	var out struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	}
	if err := p.post(ctx, "/v1/name", req, &out); err != nil {
		return "", 0, err
	}
	return out.Name, out.Confidence, nil
}

// ResolveTime resolves a spoken time expression relative to ref.
func (p *HTTPProvider) ResolveTime(ctx context.Context, transcript string, ref time.Time) (*TimeResult, error) {
	req := struct {
		Transcript string    `json:"transcript"`
		Reference  time.Time `json:"reference"`
	}{Transcript: transcript, Reference: ref}

	var out TimeResult
	if err := p.post(ctx, "/v1/time", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Classify picks the best-matching label for the transcript.
func (p *HTTPProvider) Classify(ctx context.Context, transcript string, labels []string) (string, float64, error) {
	req := struct {
		Transcript string   `json:"transcript"`
		Labels     []string `json:"labels"`
	}{Transcript: transcript, Labels: labels}

	var out struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	if err := p.post(ctx, "/v1/classify", req, &out); err != nil {
		return "", 0, err
	}
	return out.Label, out.Confidence, nil
}

// Answer produces a short spoken answer grounded on business facts.
func (p *HTTPProvider) Answer(ctx context.Context, question string, facts map[string]string) (string, error) {
	req := struct {
		Question string            `json:"question"`
		Facts    map[string]string `json:"facts,omitempty"`
	}{Question: question, Facts: facts}

	var out struct {
		Answer string `json:"answer"`
	}
	if err := p.post(ctx, "/v1/answer", req, &out); err != nil {
		return "", err
	}
	return out.Answer, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("nlu request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("nlu error %d: %s", resp.StatusCode, string(errBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
