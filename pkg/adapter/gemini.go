package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/pagetalk/pkg/model"
	"github.com/m-mizutani/pagetalk/pkg/utils/logging"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// defaultVisionModels are the models known to accept inline image input.
var defaultVisionModels = []string{
	"gemini-2.0-pro",
	"gemini-2.0-flash",
	"gemini-2.0-flash-thinking-exp-01-21",
	"gemini-2.0-pro-exp-02-05",
	"gemini-exp-1206",
}

// DefaultFallbackModel is substituted for a single call when the selected
// model cannot handle attachments.
const DefaultFallbackModel = "gemini-2.0-flash"

// Content is one turn of the wire payload.
type Content struct {
	Role  string  `json:"role"`
	Parts []*Part `json:"parts"`
}

// Part is either a text fragment or inline binary data, never both.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData carries a base64-encoded attachment payload.
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// GenerationConfig mirrors the provider's generationConfig object.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
	TopP            float64 `json:"topP"`
}

// GenerateRequest is the provider-agnostic request payload produced by the
// request builder.
type GenerateRequest struct {
	Contents         []*Content       `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

// HasAttachments reports whether any part carries inline data.
func (r *GenerateRequest) HasAttachments() bool {
	for _, c := range r.Contents {
		for _, p := range c.Parts {
			if p.InlineData != nil {
				return true
			}
		}
	}
	return false
}

type generateResponse struct {
	Candidates []struct {
		Content *Content `json:"content"`
	} `json:"candidates"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Gemini is the interface for the generation client.
type Gemini interface {
	// GenerateContent issues one buffered call and returns the first
	// candidate's text.
	GenerateContent(ctx context.Context, modelName string, req *GenerateRequest) (string, error)

	// GenerateContentStream issues one call whose body is consumed
	// incrementally. onChunk receives the accumulated text so far; each
	// delivery is a prefix-extension of the previous one. The final
	// accumulation is returned.
	GenerateContentStream(ctx context.Context, modelName string, req *GenerateRequest, onChunk func(accumulated string)) (string, error)
}

// GeminiClient implements Gemini against the HTTP wire protocol.
type GeminiClient struct {
	apiKey        string
	baseURL       string
	httpClient    *http.Client
	notifier      Notifier
	visionModels  map[string]bool
	fallbackModel string
}

type GeminiOption func(*GeminiClient)

func WithBaseURL(baseURL string) GeminiOption {
	return func(g *GeminiClient) {
		g.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

func WithHTTPClient(c *http.Client) GeminiOption {
	return func(g *GeminiClient) {
		g.httpClient = c
	}
}

func WithNotifier(n Notifier) GeminiOption {
	return func(g *GeminiClient) {
		g.notifier = n
	}
}

func WithVisionModels(models []string) GeminiOption {
	return func(g *GeminiClient) {
		g.visionModels = make(map[string]bool, len(models))
		for _, m := range models {
			g.visionModels[m] = true
		}
	}
}

func WithFallbackModel(m string) GeminiOption {
	return func(g *GeminiClient) {
		g.fallbackModel = m
	}
}

// NewGemini creates a generation client. The API key is verified at call
// time, not here, so a client can be built before configuration completes.
func NewGemini(apiKey string, opts ...GeminiOption) *GeminiClient {
	g := &GeminiClient{
		apiKey:        apiKey,
		baseURL:       defaultBaseURL,
		httpClient:    http.DefaultClient,
		notifier:      NewLogNotifier(),
		fallbackModel: DefaultFallbackModel,
	}
	g.visionModels = make(map[string]bool, len(defaultVisionModels))
	for _, m := range defaultVisionModels {
		g.visionModels[m] = true
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// resolveModel applies the capability check: a request with attachments
// against a model outside the vision set is redirected to the fallback
// model for this call only.
func (g *GeminiClient) resolveModel(ctx context.Context, modelName string, req *GenerateRequest) string {
	if !req.HasAttachments() || g.visionModels[modelName] {
		return modelName
	}

	logging.From(ctx).Warn("model does not support image input, using fallback",
		"model", modelName, "fallback", g.fallbackModel)
	g.notifier.Notify(ctx, NotifyWarning,
		fmt.Sprintf("model %s does not support image input, using %s for this message", modelName, g.fallbackModel))

	return g.fallbackModel
}

func (g *GeminiClient) GenerateContent(ctx context.Context, modelName string, req *GenerateRequest) (string, error) {
	if g.apiKey == "" {
		return "", goerr.Wrap(model.ErrNoCredential, "cannot call generation API")
	}

	effective := g.resolveModel(ctx, modelName, req)

	text, err := g.call(ctx, effective, req)
	if err == nil {
		return text, nil
	}

	// A capability mismatch the pre-call check missed gets one retry with
	// the fallback model. The configured model is never mutated; a failed
	// fallback call surfaces its error as-is.
	if effective == modelName && req.HasAttachments() && isCapabilityError(err) {
		g.notifier.Notify(ctx, NotifyWarning,
			fmt.Sprintf("model %s rejected image input, retrying with %s", modelName, g.fallbackModel))
		return g.call(ctx, g.fallbackModel, req)
	}

	return "", err
}

func (g *GeminiClient) call(ctx context.Context, modelName string, req *GenerateRequest) (string, error) {
	resp, err := g.post(ctx, modelName, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return "", newTransportError(resp.StatusCode, body)
	}

	return ParseResponseText(body)
}

func (g *GeminiClient) GenerateContentStream(ctx context.Context, modelName string, req *GenerateRequest, onChunk func(accumulated string)) (string, error) {
	if g.apiKey == "" {
		return "", goerr.Wrap(model.ErrNoCredential, "cannot call generation API")
	}

	effective := g.resolveModel(ctx, modelName, req)

	resp, err := g.post(ctx, effective, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", goerr.Wrap(readErr, "failed to read error response")
		}
		return "", newTransportError(resp.StatusCode, body)
	}

	var acc strings.Builder
	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			// Abandoned: stop accumulating, no further callbacks.
			return "", goerr.Wrap(err, "stream abandoned")
		}

		n, err := resp.Body.Read(buf)
		if n > 0 {
			acc.Write(buf[:n])
			if onChunk != nil {
				onChunk(acc.String())
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", goerr.Wrap(err, "failed to read stream chunk")
		}
	}

	return acc.String(), nil
}

func (g *GeminiClient) post(ctx context.Context, modelName string, req *GenerateRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal request")
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, modelName, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build request", goerr.V("model", modelName))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, goerr.Wrap(err, "generation request failed", goerr.V("model", modelName))
	}

	return resp, nil
}

// ParseResponseText extracts the first candidate's text from a response
// body, or ErrEmptyResponse when no usable text is present.
func ParseResponseText(body []byte) (string, error) {
	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", goerr.Wrap(err, "failed to parse response")
	}

	if len(parsed.Candidates) == 0 || parsed.Candidates[0].Content == nil {
		return "", goerr.Wrap(model.ErrEmptyResponse, "no candidates returned")
	}
	for _, p := range parsed.Candidates[0].Content.Parts {
		if p.Text != "" {
			return p.Text, nil
		}
	}
	return "", goerr.Wrap(model.ErrEmptyResponse, "candidate has no text part")
}

// TransportError is a provider or network failure. Message carries the
// provider-supplied error text verbatim.
type TransportError struct {
	StatusCode int
	Message    string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("generation API error (status %d): %s", e.StatusCode, e.Message)
}

func newTransportError(statusCode int, body []byte) error {
	var parsed generateResponse
	message := "unknown error"
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	}
	return goerr.Wrap(&TransportError{StatusCode: statusCode, Message: message},
		"generation request rejected", goerr.V("status_code", statusCode))
}

// isCapabilityError detects the provider's rejection of image input by an
// incapable model.
func isCapabilityError(err error) bool {
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	return strings.Contains(te.Message, "not supported")
}
