// Package codegen turns user requests into AI prompts, calls the provider
// once, and normalizes the answer.
//
// FLOW (every operation):
//
//	build prompt → ai.Client.Complete → CleanCode → Result
//	                      ↘ ai.ErrCredentials → Fallback + Warning
//	                      ↘ anything else     → apperror.ErrUpstream
//
// There are no retries. A missing or rejected API key is not an error for
// the caller: the response is served from deterministic templates and
// carries a warning instead.
package codegen

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/codemind/internal/ai"
	"github.com/sakif/codemind/internal/apperror"
)

// Demo-mode warnings attached to fallback results.
const (
	WarnGenerate = "Using demo code. Configure Gemini API key for AI-powered generation."
	WarnFix      = "Using demo fix. Configure Gemini API key for AI-powered fixes."
	WarnExplain  = "Using demo explanation. Configure Gemini API key for AI-powered explanations."
	WarnOptimize = "Using demo optimization. Configure Gemini API key for AI-powered optimization."
	WarnConvert  = "Using demo conversion. Configure Gemini API key for AI-powered conversion."
)

// DefaultTimeout bounds a single provider call when none is configured.
const DefaultTimeout = 60 * time.Second

// Result is the outcome of one gateway operation. Text holds code for every
// operation except Explain, where it holds prose.
type Result struct {
	Text           string
	EnhancedPrompt string // Generate only
	Warning        string
	Fallback       bool
}

type GenerateRequest struct {
	Prompt    string
	Language  string
	Framework string
	Styling   string
}

type Gateway struct {
	client   ai.Client
	fallback *Fallback
	metrics  *Metrics
	timeout  time.Duration
	logger   *slog.Logger
}

func New(client ai.Client, fallback *Fallback, metrics *Metrics, timeout time.Duration, logger *slog.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{
		client:   client,
		fallback: fallback,
		metrics:  metrics,
		timeout:  timeout,
		logger:   logger,
	}
}

// Provider names the configured AI backend.
func (g *Gateway) Provider() string { return g.client.Provider() }

func (g *Gateway) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	enhanced := EnhancePrompt(req.Prompt, req.Language, req.Framework, req.Styling)

	res, err := g.run(ctx, "generate", enhanced, true, WarnGenerate, func() (string, error) {
		return g.fallback.Code(req.Prompt, req.Language, req.Styling)
	})
	if err != nil {
		return nil, err
	}
	res.EnhancedPrompt = enhanced
	return res, nil
}

func (g *Gateway) Fix(ctx context.Context, code, errorMessage, language string) (*Result, error) {
	return g.run(ctx, "fix", fixPrompt(code, errorMessage, language), true, WarnFix, func() (string, error) {
		return g.fallback.Fix(code), nil
	})
}

// Explain returns the model's prose unmodified.
func (g *Gateway) Explain(ctx context.Context, code, language string) (*Result, error) {
	return g.run(ctx, "explain", explainPrompt(code, language), false, WarnExplain, func() (string, error) {
		return g.fallback.Explain(), nil
	})
}

func (g *Gateway) Optimize(ctx context.Context, code, language string) (*Result, error) {
	return g.run(ctx, "optimize", optimizePrompt(code, language), true, WarnOptimize, func() (string, error) {
		return g.fallback.Optimize(code), nil
	})
}

func (g *Gateway) Convert(ctx context.Context, code, from, to string) (*Result, error) {
	return g.run(ctx, "convert", convertPrompt(code, from, to), true, WarnConvert, func() (string, error) {
		return g.fallback.Convert(code, to), nil
	})
}

func (g *Gateway) run(
	ctx context.Context,
	operation, prompt string,
	clean bool,
	warning string,
	fallback func() (string, error),
) (*Result, error) {
	provider := g.client.Provider()

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	raw, err := g.client.Complete(callCtx, prompt)
	elapsed := time.Since(start)
	g.metrics.duration.WithLabelValues(provider, operation).Observe(elapsed.Seconds())

	if err != nil {
		if errors.Is(err, ai.ErrCredentials) {
			g.metrics.requests.WithLabelValues(provider, operation, statusFallback).Inc()
			g.metrics.fallbacks.WithLabelValues(operation).Inc()
			g.logger.Warn("AI provider unavailable, serving demo output",
				slog.String("provider", provider),
				slog.String("operation", operation),
				slog.String("error", err.Error()),
			)

			text, ferr := fallback()
			if ferr != nil {
				return nil, ferr
			}
			return &Result{Text: text, Warning: warning, Fallback: true}, nil
		}

		g.metrics.requests.WithLabelValues(provider, operation, statusError).Inc()
		g.logger.Error("AI provider call failed",
			slog.String("provider", provider),
			slog.String("operation", operation),
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream("Failed to "+operation+" code: AI service error", err)
	}

	g.metrics.requests.WithLabelValues(provider, operation, statusSuccess).Inc()
	g.logger.Debug("AI provider call succeeded",
		slog.String("provider", provider),
		slog.String("operation", operation),
		slog.Duration("duration", elapsed),
		slog.Int("chars", len(raw)),
	)

	text := raw
	if clean {
		text = CleanCode(raw)
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperror.Upstream("AI service returned an empty response", ai.ErrEmptyResponse)
	}
	return &Result{Text: text}, nil
}
