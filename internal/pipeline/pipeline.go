// Package pipeline is the scoring entry point: it validates a listing,
// applies the request governor, runs the heuristic scorer and the AI
// reviewer, fuses both opinions and hands the audit record to the store.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-trust/internal/fusion"
	"github.com/sells-group/listing-trust/internal/governor"
	"github.com/sells-group/listing-trust/internal/metrics"
	"github.com/sells-group/listing-trust/internal/model"
	"github.com/sells-group/listing-trust/internal/review"
	"github.com/sells-group/listing-trust/internal/scorer"
	"github.com/sells-group/listing-trust/internal/store"
)

// DefaultAuditTimeout bounds one audit append.
const DefaultAuditTimeout = 5 * time.Second

// Request is one scoring call.
type Request struct {
	// UserID is the authenticated caller, if any.
	UserID string
	// Fallback identifies anonymous callers to the governor, e.g. a remote IP.
	Fallback string
	Listing  *model.Listing
}

// Evaluation is a successful scoring call plus the governor's decision.
type Evaluation struct {
	Result   model.PublishedResult
	Decision governor.Decision
}

// Pipeline orchestrates one scoring request.
type Pipeline struct {
	scorer       *scorer.Scorer
	reviewer     *review.Reviewer
	governor     *governor.Governor
	listings     store.ListingStore
	audits       store.AuditStore
	auditTimeout time.Duration
	now          func() time.Time

	pending sync.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithGovernor rate-limits Evaluate per caller identity.
func WithGovernor(g *governor.Governor) Option {
	return func(p *Pipeline) { p.governor = g }
}

// WithListings enables EvaluateByID.
func WithListings(s store.ListingStore) Option {
	return func(p *Pipeline) { p.listings = s }
}

// WithAudits sets where audit records are appended.
func WithAudits(s store.AuditStore) Option {
	return func(p *Pipeline) { p.audits = s }
}

// WithAuditTimeout bounds each audit append.
func WithAuditTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.auditTimeout = d
		}
	}
}

// WithClock overrides the evaluation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline. A nil reviewer means every review uses the
// unconfigured fallback.
func New(sc *scorer.Scorer, rv *review.Reviewer, opts ...Option) (*Pipeline, error) {
	if sc == nil {
		return nil, eris.New("pipeline: scorer is required")
	}
	if rv == nil {
		rv = review.New(nil)
	}
	p := &Pipeline{
		scorer:       sc,
		reviewer:     rv,
		auditTimeout: DefaultAuditTimeout,
		now:          time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Evaluate scores a listing. The only errors are model.ErrInvalidInput for
// a malformed listing and *resilience.RateLimitedError for a governor
// denial; every downstream failure degrades into the result instead.
func (p *Pipeline) Evaluate(ctx context.Context, req Request) (Evaluation, error) {
	if err := req.Listing.Validate(); err != nil {
		metrics.EvaluationsTotal.WithLabelValues("invalid").Inc()
		return Evaluation{}, err
	}

	identity := governor.Identity(req.UserID, req.Fallback)
	var decision governor.Decision
	if p.governor != nil {
		decision = p.governor.Admit(ctx, identity)
		if !decision.Allowed {
			metrics.EvaluationsTotal.WithLabelValues("rate_limited").Inc()
			return Evaluation{Decision: decision}, decision.Err(identity)
		}
	}

	l := req.Listing
	h := p.scorer.SafeScore(l)
	ai := p.reviewer.Review(ctx, l, review.NewPreview(h))
	res := fusion.Fuse(l.ID, h, ai, p.now())

	p.appendAudit(ctx, fusion.Audit(res, req.UserID, ""))

	metrics.EvaluationsTotal.WithLabelValues("scored").Inc()
	metrics.TrustScore.Observe(float64(res.TrustScore))
	zap.L().Debug("pipeline: listing scored",
		zap.String("listing_id", l.ID),
		zap.String("identity", identity),
		zap.Int("trust_score", res.TrustScore),
		zap.Int("heuristic_score", h.Score),
		zap.String("review_status", string(ai.Status)),
	)
	return Evaluation{Result: res, Decision: decision}, nil
}

// EvaluateByID loads a stored listing and evaluates it. An unknown id
// yields model.ErrListingNotFound.
func (p *Pipeline) EvaluateByID(ctx context.Context, listingID string, req Request) (Evaluation, error) {
	if p.listings == nil {
		return Evaluation{}, eris.New("pipeline: no listing store configured")
	}
	l, err := p.listings.GetListing(ctx, listingID)
	if err != nil {
		metrics.EvaluationsTotal.WithLabelValues("not_found").Inc()
		return Evaluation{}, err
	}
	if l.ID == "" {
		l.ID = listingID
	}
	req.Listing = l
	return p.Evaluate(ctx, req)
}

// appendAudit issues the audit write without waiting for it. The write
// outlives the request context but not its own timeout.
func (p *Pipeline) appendAudit(ctx context.Context, a model.TrustAudit) {
	if p.audits == nil {
		metrics.AuditWritesTotal.WithLabelValues("skipped").Inc()
		return
	}

	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				metrics.AuditWritesTotal.WithLabelValues("error").Inc()
				zap.L().Error("pipeline: audit append panicked", zap.String("audit_id", a.ID), zap.Any("panic", r))
			}
		}()

		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.auditTimeout)
		defer cancel()

		if err := p.audits.AppendAudit(wctx, a); err != nil {
			metrics.AuditWritesTotal.WithLabelValues("error").Inc()
			zap.L().Error("pipeline: audit append failed",
				zap.String("audit_id", a.ID),
				zap.String("listing_id", a.ListingID),
				zap.Error(err),
			)
			return
		}
		metrics.AuditWritesTotal.WithLabelValues("ok").Inc()
	}()
}

// Wait blocks until every issued audit write has finished.
func (p *Pipeline) Wait() {
	p.pending.Wait()
}
