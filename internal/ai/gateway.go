package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/narravox/internal/config"
)

// Backend identifies one supported model backend.
type Backend string

const (
	BackendOpenAI    Backend = "openai"
	BackendAnthropic Backend = "anthropic"
	BackendGoogle    Backend = "google"
	BackendOllama    Backend = "ollama"
)

// defaultVersions apply when neither the request nor the configuration pins
// a concrete model version for a backend.
var defaultVersions = map[Backend]string{
	BackendOpenAI:    "gpt-4o-mini",
	BackendAnthropic: "claude-3-5-haiku-latest",
	BackendGoogle:    "gemini-2.5-flash",
	BackendOllama:    "llama3",
}

// Request describes one synthesis call: a system instruction plus the
// prompt document built from the selected comments.
type Request struct {
	Model        string
	ModelVersion string
	System       string
	Document     string
	MaxTokens    int
	Temperature  float64
}

// Response carries the raw model output. Parsing the content into a
// narrative or topic list is the caller's concern.
type Response struct {
	Content    string
	Model      string
	StopReason string
}

// Invoker is the narrow surface the orchestrators depend on.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

type clientKey struct {
	backend Backend
	version string
}

// Gateway dispatches synthesis calls to the configured model backends,
// creating one client per (backend, version) pair on first use.
type Gateway struct {
	cfg *config.Config

	mu      sync.Mutex
	clients map[clientKey]llms.Model
}

var _ Invoker = (*Gateway)(nil)

// NewGateway creates a gateway over the configured backends. Clients are
// created lazily, so a backend with missing credentials only fails when a
// request first targets it.
func NewGateway(cfg *config.Config) *Gateway {
	return &Gateway{
		cfg:     cfg,
		clients: make(map[clientKey]llms.Model),
	}
}

// Invoke performs a single model call. All failures come back as *Failure;
// retry policy belongs to the caller.
func (g *Gateway) Invoke(ctx context.Context, req Request) (*Response, error) {
	backend := Backend(strings.ToLower(strings.TrimSpace(req.Model)))
	version := g.resolveVersion(backend, req.ModelVersion)

	model, err := g.client(ctx, backend, version)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("backend", string(backend)).
		Str("version", version).
		Int("max_tokens", req.MaxTokens).
		Int("document_bytes", len(req.Document)).
		Msg("Invoking model backend")

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, req.System),
		llms.TextParts(llms.ChatMessageTypeHuman, req.Document),
	}

	callOptions := []llms.CallOption{
		llms.WithTemperature(req.Temperature),
	}
	if req.MaxTokens > 0 {
		callOptions = append(callOptions, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := model.GenerateContent(ctx, messages, callOptions...)
	if err != nil {
		failure := Classify(string(backend), err)
		log.Debug().
			Str("backend", string(backend)).
			Str("version", version).
			Str("code", string(failure.Code)).
			Bool("retryable", failure.Retryable).
			Msg("Model backend call failed")
		return nil, failure
	}

	if len(resp.Choices) == 0 {
		return nil, &Failure{
			Backend: string(backend),
			Code:    FailureMalformedResponse,
			Err:     fmt.Errorf("backend returned no choices"),
		}
	}

	choice := resp.Choices[0]
	if strings.TrimSpace(choice.Content) == "" {
		return nil, &Failure{
			Backend: string(backend),
			Code:    FailureMalformedResponse,
			Err:     fmt.Errorf("backend returned an empty completion"),
		}
	}

	return &Response{
		Content:    choice.Content,
		Model:      version,
		StopReason: choice.StopReason,
	}, nil
}

func (g *Gateway) resolveVersion(backend Backend, requested string) string {
	if requested != "" {
		return requested
	}
	if configured := g.cfg.ModelSetting(string(backend), "model"); configured != "" {
		return configured
	}
	return defaultVersions[backend]
}

// client returns the memoized model client for one (backend, version) pair,
// creating it on first use.
func (g *Gateway) client(ctx context.Context, backend Backend, version string) (llms.Model, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := clientKey{backend: backend, version: version}
	if model, ok := g.clients[key]; ok {
		return model, nil
	}

	var model llms.Model
	var err error

	switch backend {
	case BackendOpenAI:
		model, err = g.newOpenAIModel(version)
	case BackendAnthropic:
		model, err = g.newAnthropicModel(version)
	case BackendGoogle:
		model, err = g.newGoogleModel(ctx, version)
	case BackendOllama:
		model, err = g.newOllamaModel(version)
	default:
		return nil, &Failure{
			Backend: string(backend),
			Code:    FailureUnsupportedModel,
			Err:     fmt.Errorf("unsupported model backend %q", string(backend)),
		}
	}

	if err != nil {
		return nil, &Failure{
			Backend: string(backend),
			Code:    FailureBackendError,
			Err:     fmt.Errorf("failed to create %s client: %w", backend, err),
		}
	}

	log.Debug().
		Str("backend", string(backend)).
		Str("version", version).
		Msg("Created model backend client")

	g.clients[key] = model
	return model, nil
}

func (g *Gateway) newOpenAIModel(version string) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithModel(version),
		openai.WithToken(g.cfg.APIKey("openai")),
	}
	if baseURL := g.cfg.ModelSetting("openai", "base_url"); baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	return openai.New(opts...)
}

func (g *Gateway) newAnthropicModel(version string) (llms.Model, error) {
	opts := []anthropic.Option{
		anthropic.WithToken(g.cfg.APIKey("anthropic")),
		anthropic.WithModel(version),
	}
	return anthropic.New(opts...)
}

func (g *Gateway) newGoogleModel(ctx context.Context, version string) (llms.Model, error) {
	opts := []googleai.Option{
		googleai.WithAPIKey(g.cfg.APIKey("google")),
		googleai.WithDefaultModel(version),
	}
	return googleai.New(ctx, opts...)
}

func (g *Gateway) newOllamaModel(version string) (llms.Model, error) {
	baseURL := g.cfg.ModelSetting("ollama", "base_url")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	opts := []ollama.Option{
		ollama.WithServerURL(baseURL),
		ollama.WithModel(version),
	}
	return ollama.New(opts...)
}
