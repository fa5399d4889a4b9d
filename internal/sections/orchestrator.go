package sections

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/narravox/internal/ai"
	"github.com/narravox/internal/config"
	"github.com/narravox/internal/conversation"
	"github.com/narravox/internal/coverage"
	"github.com/narravox/internal/llm"
	"github.com/narravox/internal/logging"
	"github.com/narravox/internal/prompts"
	"github.com/narravox/internal/reportcache"
	"github.com/narravox/internal/retry"
	"github.com/narravox/pkg/models"
)

const (
	defaultMaxTokens   = 4096
	defaultTemperature = 0.4
)

// Error ties a synthesis failure to the envelope tag callers emit for it.
type Error struct {
	Tag models.ErrorTag
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Tag, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Request carries everything one section synthesis needs.
type Request struct {
	ConversationID string
	ReportID       string
	Model          string
	ModelVersion   string
	Spec           Spec
	ForceRefresh   bool
}

// Orchestrator runs the per-section pipeline: cache check, comment
// selection, prompt build, model invocation, coverage audit, persistence.
type Orchestrator struct {
	store    conversation.Store
	gateway  ai.Invoker
	cache    reportcache.Store
	limiter  *rate.Limiter
	builder  *prompts.Builder
	retryCfg retry.RetryConfig
	cfg      *config.Config
}

// NewOrchestrator wires the section pipeline. The limiter is shared across
// sections so concurrent synthesis respects one global backend budget.
func NewOrchestrator(store conversation.Store, gateway ai.Invoker, cache reportcache.Store, limiter *rate.Limiter, cfg *config.Config) *Orchestrator {
	retryCfg := retry.LLMRetryConfig()
	retryCfg.MaxRetries = cfg.Report.MaxRetries
	retryCfg.RetryIf = retryableFailure

	return &Orchestrator{
		store:    store,
		gateway:  gateway,
		cache:    cache,
		limiter:  limiter,
		builder:  prompts.NewBuilder(),
		retryCfg: retryCfg,
		cfg:      cfg,
	}
}

// Synthesize produces the envelope for one narrative section. The second
// return reports whether the envelope was served from cache. Failures do
// not escape as errors; they surface as tagged envelopes so one bad section
// cannot sink the whole report.
func (o *Orchestrator) Synthesize(ctx context.Context, req Request) (models.SectionEnvelope, bool) {
	logger := logging.WithReport(req.ConversationID, req.ReportID)
	key := reportcache.Key{ReportID: req.ReportID, Section: req.Spec.Name, Model: req.Model}

	if cached := o.lookup(ctx, key, req.ForceRefresh, logger); cached != nil {
		logger.Debug().Str("section", req.Spec.Name).Msg("Serving section from cache")
		return models.NewEnvelope(req.Spec.Name, models.SectionResult{
			ModelResponse: cached.ReportData,
			Model:         cached.Model,
			Coverage:      cached.Coverage,
		}), true
	}

	result, err := o.produce(ctx, req, logger)
	if err != nil {
		tag := tagOf(err)
		if tag == models.TagNoContentAfterFilter {
			logger.Debug().Str("section", req.Spec.Name).Msg("No comments survived section filter")
		} else {
			logger.Error().Err(err).Str("section", req.Spec.Name).Msg("Section synthesis failed")
		}
		return models.NewEnvelope(req.Spec.Name, models.SectionResult{Model: req.Model, Errors: tag}), false
	}

	o.persist(ctx, result, logger)

	return models.NewEnvelope(req.Spec.Name, models.SectionResult{
		ModelResponse: result.ReportData,
		Model:         result.Model,
		Coverage:      result.Coverage,
	}), false
}

// Topics runs the extraction call that decides which dynamic sections the
// report gets. The topic list is cached like any section so repeat requests
// reuse it. An empty conversation yields no topics and no error.
func (o *Orchestrator) Topics(ctx context.Context, req Request) ([]models.Topic, error) {
	logger := logging.WithReport(req.ConversationID, req.ReportID)
	req.Spec = TopicsSpec()
	key := reportcache.Key{ReportID: req.ReportID, Section: req.Spec.Name, Model: req.Model}

	if cached := o.lookup(ctx, key, req.ForceRefresh, logger); cached != nil {
		var topics []models.Topic
		if err := json.Unmarshal(cached.ReportData, &topics); err == nil {
			logger.Debug().Int("topics", len(topics)).Msg("Serving topic list from cache")
			return topics, nil
		}
		logger.Warn().Str("cache_key", key.Canonical()).Msg("Discarding undecodable cached topic list")
	}

	resp, _, _, err := o.generate(ctx, req, logger)
	if err != nil {
		if tagOf(err) == models.TagNoContentAfterFilter {
			return nil, nil
		}
		return nil, err
	}

	topics, err := llm.ParseTopics(resp.Content)
	if err != nil {
		return nil, &Error{Tag: models.TagMalformedModelOutput, Err: err}
	}

	if payload, err := json.Marshal(topics); err == nil {
		o.persist(ctx, &reportcache.Result{
			Key:        key,
			CreatedAt:  time.Now(),
			ReportData: payload,
			Model:      resp.Model,
		}, logger)
	}

	logger.Debug().Int("topics", len(topics)).Msg("Extracted topic list")
	return topics, nil
}

// produce runs the full pipeline for a narrative section and returns the
// cache entry to persist and emit.
func (o *Orchestrator) produce(ctx context.Context, req Request, logger zerolog.Logger) (*reportcache.Result, error) {
	resp, filteredIDs, total, err := o.generate(ctx, req, logger)
	if err != nil {
		return nil, err
	}

	narrative, err := llm.ParseNarrative(resp.Content)
	if err != nil {
		return nil, &Error{Tag: models.TagMalformedModelOutput, Err: err}
	}

	metrics := coverage.Audit(narrative, filteredIDs, total)

	payload, err := json.Marshal(narrative)
	if err != nil {
		return nil, &Error{Tag: models.TagMalformedModelOutput, Err: err}
	}

	return &reportcache.Result{
		Key:        reportcache.Key{ReportID: req.ReportID, Section: req.Spec.Name, Model: req.Model},
		CreatedAt:  time.Now(),
		ReportData: payload,
		Model:      resp.Model,
		Coverage:   &metrics,
	}, nil
}

// generate is the shared front half of a synthesis: select the comments,
// build the prompt document, call the model.
func (o *Orchestrator) generate(ctx context.Context, req Request, logger zerolog.Logger) (*ai.Response, []int, int, error) {
	records, total, err := conversation.Select(ctx, o.store, req.ConversationID, req.Spec.Predicate)
	if err != nil {
		return nil, nil, 0, &Error{Tag: models.TagDataSourceFailure, Err: err}
	}
	if len(records) == 0 {
		return nil, nil, total, &Error{
			Tag: models.TagNoContentAfterFilter,
			Err: fmt.Errorf("no comments survived the %s filter", req.Spec.Name),
		}
	}

	logger.Debug().
		Str("section", req.Spec.Name).
		Int("filtered", len(records)).
		Int("total", total).
		Msg("Selected comments for section")

	document, err := o.builder.Build(req.Spec.Template, records)
	if err != nil {
		return nil, nil, 0, &Error{Tag: models.TagPromptBuildFailure, Err: err}
	}

	resp, err := o.invoke(ctx, ai.Request{
		Model:        req.Model,
		ModelVersion: req.ModelVersion,
		System:       req.Spec.System,
		Document:     document,
		MaxTokens:    o.maxTokens(req),
		Temperature:  o.temperature(req),
	})
	if err != nil {
		return nil, nil, 0, &Error{Tag: models.TagModelInvocationFailure, Err: err}
	}

	filteredIDs := make([]int, len(records))
	for i, record := range records {
		filteredIDs[i] = record.ID
	}
	return resp, filteredIDs, total, nil
}

// invoke performs the gateway call under the shared rate limiter, a
// per-call timeout, and the retry policy. Only failures the gateway marks
// retryable are attempted again.
func (o *Orchestrator) invoke(ctx context.Context, req ai.Request) (*ai.Response, error) {
	var resp *ai.Response
	result := retry.RetryWithBackoffAndReason(ctx, o.retryCfg, func() (error, string) {
		if err := o.limiter.Wait(ctx); err != nil {
			return err, "limiter_wait"
		}

		callCtx := ctx
		if timeout := o.cfg.Report.CallTimeout; timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		r, err := o.gateway.Invoke(callCtx, req)
		if err != nil {
			return err, failureReason(err)
		}
		resp = r
		return nil, ""
	})
	if !result.Success {
		return nil, result.LastError
	}
	return resp, nil
}

// lookup returns a usable cached entry or nil. Cache read failures are
// logged and treated as misses; the cache accelerates synthesis, it does
// not gate it. Entries that recorded an error are never served.
func (o *Orchestrator) lookup(ctx context.Context, key reportcache.Key, force bool, logger zerolog.Logger) *reportcache.Result {
	if force {
		return nil
	}
	cached, err := o.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, reportcache.ErrNotFound) {
			logger.Warn().Err(err).Str("cache_key", key.Canonical()).Msg("Cache lookup failed")
		}
		return nil
	}
	if !cached.Fresh(o.cfg.Cache.Horizon) {
		return nil
	}
	if cached.Errors != "" {
		return nil
	}
	return cached
}

// persist stores a successful synthesis. Error results are never written.
// A write failure downgrades the entry to uncached; the section still ships.
func (o *Orchestrator) persist(ctx context.Context, result *reportcache.Result, logger zerolog.Logger) {
	if err := o.cache.Put(ctx, result); err != nil {
		logger.Warn().Err(err).Str("cache_key", result.Key.Canonical()).Msg("Failed to persist section result")
	}
}

func (o *Orchestrator) maxTokens(req Request) int {
	if req.Spec.MaxTokens > 0 {
		return req.Spec.MaxTokens
	}
	return int(o.cfg.ModelNumber(req.Model, "max_tokens", defaultMaxTokens))
}

func (o *Orchestrator) temperature(req Request) float64 {
	if req.Spec.Temperature > 0 {
		return req.Spec.Temperature
	}
	return o.cfg.ModelNumber(req.Model, "temperature", defaultTemperature)
}

// tagOf extracts the envelope tag from a synthesis error, defaulting to the
// invocation tag for errors raised outside the pipeline steps.
func tagOf(err error) models.ErrorTag {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Tag
	}
	return models.TagModelInvocationFailure
}

func failureReason(err error) string {
	var failure *ai.Failure
	if errors.As(err, &failure) {
		return string(failure.Code)
	}
	return err.Error()
}

func retryableFailure(err error) bool {
	var failure *ai.Failure
	if errors.As(err, &failure) {
		return failure.Retryable
	}
	return retry.IsRetryableError(err)
}
