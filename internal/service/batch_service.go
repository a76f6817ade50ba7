package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/pesio-ai/be-ar-invoicing/internal/billing"
	"github.com/pesio-ai/be-ar-invoicing/internal/classifier"
	"github.com/pesio-ai/be-ar-invoicing/internal/client"
	"github.com/pesio-ai/be-ar-invoicing/internal/grouping"
	"github.com/pesio-ai/be-ar-invoicing/internal/logger"
)

const tracerName = "github.com/pesio-ai/be-ar-invoicing/internal/service"

// errNotConfirmed means the provider consent finished but the status
// endpoint does not report a connection yet.
var errNotConfirmed = errors.New("connection not confirmed")

// Authorizer runs an interactive authorization at a URL. nil means the
// user granted access.
type Authorizer interface {
	Authorize(ctx context.Context, url string) error
}

// BatchOptions tunes the orchestrator.
type BatchOptions struct {
	// MaxConcurrency bounds in-flight submissions when there is more than one
	// group.
	MaxConcurrency int
	// RelayURL is passed to the authorization page so it can report back.
	RelayURL string
	// ReprobeAttempts bounds the status checks after a successful consent.
	ReprobeAttempts  uint
	ReprobeInterval  time.Duration
	ReprobeMaxWindow time.Duration
}

// DefaultBatchOptions returns the defaults used by the CLI.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{
		MaxConcurrency:   4,
		ReprobeAttempts:  5,
		ReprobeInterval:  500 * time.Millisecond,
		ReprobeMaxWindow: 15 * time.Second,
	}
}

// BatchService creates one invoice per recipient for a selection of
// records, reconnecting to Xero at most once if the connection expires
// mid-batch.
type BatchService struct {
	api    client.AccountingAPI
	auth   Authorizer
	opts   BatchOptions
	log    *logger.Logger
	tracer trace.Tracer
}

// NewBatchService creates a new batch service
func NewBatchService(api client.AccountingAPI, auth Authorizer, opts BatchOptions, log *logger.Logger) *BatchService {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	if opts.ReprobeAttempts < 1 {
		opts.ReprobeAttempts = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &BatchService{
		api:    api,
		auth:   auth,
		opts:   opts,
		log:    log.Component("batch"),
		tracer: otel.Tracer(tracerName),
	}
}

// CreateInvoices validates the selection, makes sure Xero is connected and
// submits one invoice per recipient group.
//
// It returns an error only when the selection fails preflight or the
// authorization window cannot be opened before anything was submitted.
// Every other outcome, including authorization failures, is reported in the
// BatchResult.
func (s *BatchService) CreateInvoices(ctx context.Context, records []billing.Record, fields billing.Fields) (*BatchResult, error) {
	if err := billing.Preflight(records, fields); err != nil {
		return nil, classifier.Wrap(err)
	}

	groups := grouping.Partition(records)
	result := &BatchResult{BatchID: uuid.NewString()}
	log := s.log.With().Str("batch_id", result.BatchID).Logger()

	ctx, span := s.tracer.Start(ctx, "invoice.batch", trace.WithAttributes(
		attribute.String("batch.id", result.BatchID),
		attribute.Int("batch.records", len(records)),
		attribute.Int("batch.groups", groups.Len()),
	))
	defer span.End()

	runs := make([]*groupRun, 0, groups.Len())
	for _, g := range groups.All() {
		runs = append(runs, newGroupRun(newInvoiceRequest(g, fields)))
	}

	sess := newAuthSession()
	if err := s.ensureConnected(ctx, sess); err != nil {
		c := classifier.Classify(err)
		span.RecordError(err)
		if c.Kind == classifier.KindPopupBlocked {
			span.SetStatus(codes.Error, c.Message)
			return nil, err
		}
		log.Warn().Str("kind", string(c.Kind)).Msg("authorization failed, nothing submitted")
		result.AuthError = &c
		for _, run := range runs {
			run.fail(c)
			result.add(run)
		}
		return result, nil
	}

	log.Info().
		Int("groups", len(runs)).
		Str("tenant", sess.State().TenantName).
		Msg("submitting invoices")

	if len(runs) == 1 {
		s.runGroup(ctx, sess, runs[0])
	} else {
		var g errgroup.Group
		g.SetLimit(s.opts.MaxConcurrency)
		for _, run := range runs {
			g.Go(func() error {
				s.runGroup(ctx, sess, run)
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, run := range runs {
		result.add(run)
	}
	result.Reauthorized = sess.reauthorized()

	span.SetAttributes(
		attribute.Int("batch.created", result.Created),
		attribute.Int("batch.updated", result.Updated),
		attribute.Int("batch.failed", len(result.Failed)),
		attribute.Bool("batch.reauthorized", result.Reauthorized),
	)
	log.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("failed", len(result.Failed)).
		Bool("reauthorized", result.Reauthorized).
		Msg("batch complete")

	return result, nil
}

// runGroup drives one group to stateDone.
func (s *BatchService) runGroup(ctx context.Context, sess *authSession, run *groupRun) {
	ctx, span := s.tracer.Start(ctx, "invoice.group", trace.WithAttributes(
		attribute.String("group.key", string(run.req.Key)),
		attribute.Int("group.records", len(run.req.RecordIDs)),
	))
	defer span.End()

	// Groups that have not started yet hold off while a reconnect is running.
	if err := s.awaitReauth(ctx, sess); err != nil {
		s.finishFailed(span, run, err)
		return
	}

	run.to(stateSubmitting)
	resp, err := s.api.CreateInvoice(ctx, run.req.wire())
	if err == nil {
		run.succeed(resp)
		return
	}
	if c := classifier.Classify(err); !c.Retryable() {
		s.finishFailed(span, run, err)
		return
	}

	run.to(stateExpiredDetected)
	s.log.Info().Str("group", string(run.req.Key)).Msg("xero connection expired, reconnecting")

	run.to(stateReauthorizing)
	if err := s.reauthorizeOnce(ctx, sess); err != nil {
		s.finishFailed(span, run, err)
		return
	}

	run.to(stateRetryingOnce)
	span.AddEvent("retry")
	resp, err = s.api.CreateInvoice(ctx, run.req.wire())
	if err != nil {
		s.finishFailed(span, run, err)
		return
	}
	run.succeed(resp)
}

func (s *BatchService) finishFailed(span trace.Span, run *groupRun, err error) {
	c := classifier.Classify(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, c.Message)
	s.log.Warn().
		Err(err).
		Str("group", string(run.req.Key)).
		Str("kind", string(c.Kind)).
		Bool("retried", run.retried).
		Msg("invoice group failed")
	run.fail(c)
}

// awaitReauth blocks while a reconnect is in flight. A failed reconnect is
// returned so the group is not submitted with credentials known to be dead.
func (s *BatchService) awaitReauth(ctx context.Context, sess *authSession) error {
	r := sess.current()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reauthorizeOnce runs the batch's only mid-batch reconnect, or waits for the
// one already started.
func (s *BatchService) reauthorizeOnce(ctx context.Context, sess *authSession) error {
	r, leader := sess.beginReauth()
	if leader {
		r.err = s.authorize(ctx, sess)
		close(r.done)
	}
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ensureConnected probes the connection and authorizes when it is missing.
func (s *BatchService) ensureConnected(ctx context.Context, sess *authSession) error {
	status, err := s.api.CheckStatus(ctx)
	switch {
	case err == nil && status.Connected:
		sess.set(AuthorizationState{Phase: PhaseConnected, TenantName: status.TenantName})
		return nil
	case err != nil && !classifier.Classify(err).Retryable():
		return err
	}
	sess.set(AuthorizationState{Phase: PhaseDisconnected})
	return s.authorize(ctx, sess)
}

// authorize opens the consent window and waits for the status endpoint to
// confirm the new connection.
func (s *BatchService) authorize(ctx context.Context, sess *authSession) error {
	sess.set(AuthorizationState{Phase: PhaseAuthorizing})
	ctx, span := s.tracer.Start(ctx, "invoice.authorize")
	defer span.End()

	if err := s.auth.Authorize(ctx, s.api.AuthorizationURL(s.opts.RelayURL)); err != nil {
		sess.set(AuthorizationState{Phase: PhaseDisconnected})
		span.RecordError(err)
		return classifier.Wrap(err)
	}

	status, err := s.reprobe(ctx)
	if err != nil {
		sess.set(AuthorizationState{Phase: PhaseDisconnected})
		span.RecordError(err)
		if errors.Is(err, errNotConfirmed) {
			return classifier.New(classifier.KindAuthDenied, "authorization completed but connection not confirmed")
		}
		return classifier.Wrap(err)
	}

	sess.set(AuthorizationState{Phase: PhaseConnected, TenantName: status.TenantName})
	s.log.Info().Str("tenant", status.TenantName).Msg("xero connected")
	return nil
}

// reprobe polls the status endpoint with exponential backoff, since the
// provider may take a moment to report a fresh connection.
func (s *BatchService) reprobe(ctx context.Context) (client.ConnectionStatus, error) {
	interval := s.opts.ReprobeInterval
	if interval <= 0 {
		interval = backoff.DefaultInitialInterval
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.MaxInterval = 4 * interval

	return backoff.Retry(ctx, func() (client.ConnectionStatus, error) {
		status, err := s.api.CheckStatus(ctx)
		if err != nil {
			switch classifier.KindOf(err) {
			case classifier.KindExpiredAuth:
				return client.ConnectionStatus{}, errNotConfirmed
			case classifier.KindTransport:
				return client.ConnectionStatus{}, err
			}
			return client.ConnectionStatus{}, backoff.Permanent(err)
		}
		if !status.Connected {
			return client.ConnectionStatus{}, errNotConfirmed
		}
		return status, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.opts.ReprobeAttempts),
		backoff.WithMaxElapsedTime(s.opts.ReprobeMaxWindow),
	)
}
