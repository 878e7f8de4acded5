// Package backend is the REST client for the interview backend. It covers
// every request/response endpoint the session needs: question submission,
// speech synthesis, session termination, the authoritative transcript, and
// preset question catalogs. The duplex control channel lives in pkg/channel.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jack-ferreri12/BasicInterviewer-v1/internal/httpc"
	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/transcript"
)

// Client talks to the interview backend over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the shared HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.client = c
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

// New creates a backend client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpc.Client,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "backend")
	return c
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("backend: API error %d: %s", e.StatusCode, e.Message)
}

// SynthesisResult is the response of the synthesis endpoint. A failed
// synthesis may still carry FallbackText, which means the flow proceeds
// without audio.
type SynthesisResult struct {
	Status       string `json:"status"`
	AudioURL     string `json:"audio_url"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
	FallbackText string `json:"fallback_text,omitempty"`
}

// OK reports whether synthesis produced playable audio.
func (r *SynthesisResult) OK() bool {
	return r.Status == "success" && r.AudioURL != ""
}

// SubmitQuestion registers one authored question with the backend.
// Callers must submit questions sequentially to preserve server-side order.
func (c *Client) SubmitQuestion(ctx context.Context, question string) error {
	var ack struct {
		OK bool `json:"ok"`
	}
	err := c.postJSON(ctx, "/submit_custom_question", map[string]string{"question": question}, &ack)
	if err != nil {
		return err
	}
	c.logger.Debug("question submitted", "chars", len(question))
	return nil
}

// Synthesize requests TTS audio for the given text.
func (c *Client) Synthesize(ctx context.Context, text string) (*SynthesisResult, error) {
	var result SynthesisResult
	err := c.postJSON(ctx, "/speak_question", map[string]string{"question": text}, &result)
	if err != nil {
		// A 4xx/5xx with a fallback_text body is a soft failure the
		// caller recovers from, not a transport error.
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			var soft SynthesisResult
			if json.Unmarshal([]byte(apiErr.Message), &soft) == nil && soft.FallbackText != "" {
				return &soft, nil
			}
		}
		return nil, err
	}
	return &result, nil
}

// EndInterview notifies the backend of explicit termination. Failures are
// logged, not returned: teardown proceeds regardless.
func (c *Client) EndInterview(ctx context.Context) {
	var ack struct {
		Status string `json:"status"`
	}
	if err := c.postJSON(ctx, "/end_interview", struct{}{}, &ack); err != nil {
		c.logger.Warn("end interview notification failed", "error", err)
		return
	}
	c.logger.Info("interview ended on backend")
}

// Transcript fetches the authoritative server-side transcript.
func (c *Client) Transcript(ctx context.Context) ([]transcript.Entry, error) {
	var body struct {
		Transcript []transcript.Entry `json:"transcript"`
		IsComplete bool               `json:"is_complete"`
	}
	if err := c.getJSON(ctx, "/get_transcript", &body); err != nil {
		return nil, err
	}
	return body.Transcript, nil
}

// LoadPreset fetches the questions of a preset catalog entry.
func (c *Client) LoadPreset(ctx context.Context, id string) ([]string, error) {
	var body struct {
		Questions []string `json:"questions"`
	}
	if err := c.getJSON(ctx, "/load_preset/"+id, &body); err != nil {
		return nil, err
	}
	if len(body.Questions) == 0 {
		return nil, fmt.Errorf("backend: preset %q has no questions", id)
	}
	return body.Questions, nil
}

// FetchAudio downloads a synthesized audio resource. Relative URLs are
// resolved against the backend base URL.
func (c *Client) FetchAudio(ctx context.Context, audioURL string) ([]byte, error) {
	url := audioURL
	if strings.HasPrefix(url, "/") {
		url = c.baseURL + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("backend: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("backend: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("backend: create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.parseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// parseError reads an error response body into an APIError. The raw body is
// kept as the message so callers can retry structured decoding.
func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
}
