package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/dispatchvoice/dispatchvoice/pkg/core/audio"
)

// HTTPProvider implements the Provider interface against a transcription
// service that accepts WAV uploads and returns JSON.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTP creates an HTTP STT provider.
func NewHTTP(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// NewHTTPWithClient creates an HTTP STT provider with a custom HTTP client.
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

// Transcribe uploads the segment as a WAV file and parses the transcript.
func (p *HTTPProvider) Transcribe(ctx context.Context, pcm []byte, opts TranscribeOptions) (*Transcript, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("empty audio segment")
	}

	sampleRate := opts.SampleRateHz
	if sampleRate == 0 {
		sampleRate = 8000
	}
	language := opts.Language
	if language == "" {
		language = "en"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", "segment.wav")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(audio.WAVFromPCM16(pcm, sampleRate)); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}
	if err := mw.WriteField("language", language); err != nil {
		return nil, fmt.Errorf("write language field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/transcribe", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stt request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("stt error %d: %s", resp.StatusCode, string(body))
	}

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &Transcript{
		Text:       out.Text,
		Confidence: out.Confidence,
		Duration:   out.Duration,
	}, nil
}

type transcribeResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Duration   float64 `json:"duration,omitempty"`
}
