package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/narravox/internal/ai"
	"github.com/narravox/internal/config"
	"github.com/narravox/internal/conversation"
	"github.com/narravox/internal/logging"
	"github.com/narravox/internal/reportcache"
	"github.com/narravox/internal/sections"
	"github.com/narravox/pkg/models"
)

// Request identifies one report run.
type Request struct {
	ConversationID string
	ReportID       string
	Model          string
	ModelVersion   string
	ForceRefresh   bool
}

// Orchestrator fans a report out into concurrently synthesized sections and
// streams each envelope as it completes. Section order is completion order;
// consumers key off the section name inside the envelope.
type Orchestrator struct {
	store    conversation.Store
	sections *sections.Orchestrator
	extra    []sections.Spec
	cfg      *config.Config
}

// New wires the report pipeline. The rate limiter spans every section of
// every concurrent report served by this instance, so the backend sees one
// global request budget.
func New(store conversation.Store, gateway ai.Invoker, cache reportcache.Store, cfg *config.Config) (*Orchestrator, error) {
	var extra []sections.Spec
	if cfg.Sections.Manifest != "" {
		loaded, err := sections.LoadManifest(cfg.Sections.Manifest, cfg)
		if err != nil {
			return nil, fmt.Errorf("report: load section manifest: %w", err)
		}
		extra = loaded
	}

	limit := rate.Inf
	if cfg.Report.RateLimit > 0 {
		limit = rate.Limit(cfg.Report.RateLimit)
	}
	burst := cfg.Report.RateBurst
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(limit, burst)

	return &Orchestrator{
		store:    store,
		sections: sections.NewOrchestrator(store, gateway, cache, limiter, cfg),
		extra:    extra,
		cfg:      cfg,
	}, nil
}

// Run validates the conversation, then launches one goroutine per section.
// The returned channel closes when every section has reported. An unknown
// conversation fails here, before any section work; section failures travel
// inside envelopes instead.
func (o *Orchestrator) Run(ctx context.Context, req Request) (<-chan models.SectionEnvelope, error) {
	if req.Model == "" {
		req.Model = o.cfg.General.DefaultModel
	}
	if req.ReportID == "" {
		req.ReportID = req.ConversationID
	}

	conv, err := o.store.Conversation(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("report: resolve conversation %s: %w", req.ConversationID, err)
	}

	logger := logging.WithReport(req.ConversationID, req.ReportID).
		With().Str("run_id", uuid.NewString()).Logger()
	logger.Info().
		Str("model", req.Model).
		Int("comments", conv.CommentCount).
		Bool("force_refresh", req.ForceRefresh).
		Msg("Starting report synthesis")

	specs := append(sections.Fixed(o.cfg), o.extra...)
	out := make(chan models.SectionEnvelope, len(specs)+1)
	counters := &runCounters{}
	start := time.Now()

	var wg sync.WaitGroup
	for _, spec := range specs {
		wg.Add(1)
		go func(spec sections.Spec) {
			defer wg.Done()
			o.runSection(ctx, req, spec, out, counters)
		}(spec)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.runTopicSections(ctx, req, &wg, out, counters, logger)
	}()

	go func() {
		wg.Wait()
		logger.Info().
			Int64("succeeded", counters.succeeded.Load()).
			Int64("failed", counters.failed.Load()).
			Int64("from_cache", counters.fromCache.Load()).
			Dur("elapsed", time.Since(start)).
			Msg("Report synthesis finished")
		close(out)
	}()

	return out, nil
}

// runSection synthesizes one section, books its outcome, and emits the
// envelope.
func (o *Orchestrator) runSection(ctx context.Context, req Request, spec sections.Spec, out chan<- models.SectionEnvelope, counters *runCounters) {
	envelope, fromCache := o.sections.Synthesize(ctx, o.sectionRequest(req, spec))
	counters.record(envelope, fromCache)
	emit(ctx, out, envelope)
}

// runTopicSections extracts the topic list and launches one section per
// topic. Extraction failure produces a single tagged topics envelope; a
// successful extraction emits only the topic sections themselves.
func (o *Orchestrator) runTopicSections(ctx context.Context, req Request, wg *sync.WaitGroup, out chan<- models.SectionEnvelope, counters *runCounters, logger zerolog.Logger) {
	topics, err := o.sections.Topics(ctx, o.sectionRequest(req, sections.TopicsSpec()))
	if err != nil {
		tag := models.TagModelInvocationFailure
		var serr *sections.Error
		if errors.As(err, &serr) {
			tag = serr.Tag
		}
		logger.Error().Err(err).Msg("Topic extraction failed")
		envelope := models.NewEnvelope("topics", models.SectionResult{Model: req.Model, Errors: tag})
		counters.record(envelope, false)
		emit(ctx, out, envelope)
		return
	}

	seen := make(map[string]bool)
	for _, topic := range topics {
		spec := sections.TopicSpec(topic)
		if seen[spec.Name] {
			logger.Warn().Str("section", spec.Name).Msg("Skipping duplicate topic section")
			continue
		}
		seen[spec.Name] = true

		wg.Add(1)
		go func(spec sections.Spec) {
			defer wg.Done()
			o.runSection(ctx, req, spec, out, counters)
		}(spec)
	}
}

// runCounters tallies section outcomes for the end-of-run summary line.
type runCounters struct {
	succeeded atomic.Int64
	failed    atomic.Int64
	fromCache atomic.Int64
}

func (c *runCounters) record(envelope models.SectionEnvelope, fromCache bool) {
	_, result, ok := envelope.Section()
	if !ok {
		return
	}
	if result.Errors != "" {
		c.failed.Add(1)
		return
	}
	c.succeeded.Add(1)
	if fromCache {
		c.fromCache.Add(1)
	}
}

func (o *Orchestrator) sectionRequest(req Request, spec sections.Spec) sections.Request {
	return sections.Request{
		ConversationID: req.ConversationID,
		ReportID:       req.ReportID,
		Model:          req.Model,
		ModelVersion:   req.ModelVersion,
		Spec:           spec,
		ForceRefresh:   req.ForceRefresh,
	}
}

// emit delivers an envelope unless the requester has gone away.
func emit(ctx context.Context, out chan<- models.SectionEnvelope, env models.SectionEnvelope) {
	select {
	case <-ctx.Done():
	case out <- env:
	}
}
