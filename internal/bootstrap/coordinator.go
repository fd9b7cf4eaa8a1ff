package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ruokun-niu/drasi-server/internal/channels"
	"github.com/ruokun-niu/drasi-server/internal/logging"
	"github.com/ruokun-niu/drasi-server/internal/source"
)

// Coordinator runs the bootstrap protocol of spec §4.3: for a given
// (source, query) pair it selects a provider — the one declared on the
// source, else the source's native provider, else noop — and drives the
// resulting insert stream into the BootstrapRouter the query reads from.
//
// Sources whose BeginBootstrap answers natively (`application` and `mock`,
// whose bootstrap data lives in the running source instance, and
// `platform` when a snapshot_url is configured) are reached through the
// native-provider path when no provider kind is declared; a source without
// a native provider returns source.ErrNoNativeProvider and falls back to
// noop. A declared kind is resolved through the Provider registry
// (postgres, scriptfile, platform, noop).
type Coordinator struct {
	router *channels.BootstrapRouter
	log    *logging.Logger
}

// NewCoordinator builds a Coordinator bound to a BootstrapRouter.
func NewCoordinator(router *channels.BootstrapRouter, log *logging.Logger) *Coordinator {
	return &Coordinator{router: router, log: log}
}

// Begin opens a bootstrap session on the router and starts streaming it
// from the resolved provider in the background. The returned
// channels.BootstrapSession is what the query reads from.
func (c *Coordinator) Begin(ctx context.Context, src source.Source, req channels.BootstrapRequest, providerKind string, properties map[string]any) (channels.BootstrapSession, error) {
	session, err := c.router.OpenSession(req)
	if err != nil {
		return channels.BootstrapSession{}, err
	}

	sessionID := uuid.NewString()
	c.log.Named("bootstrap-coordinator").
		WithField("session_id", sessionID).
		WithField("query_id", req.QueryID).
		WithField("source_id", req.SourceID).
		Debug("bootstrap session opened")

	go c.run(ctx, src, req, providerKind, properties, sessionID)
	return session, nil
}

func (c *Coordinator) run(ctx context.Context, src source.Source, req channels.BootstrapRequest, providerKind string, properties map[string]any, sessionID string) {
	inserts, results, errs, err := c.resolve(ctx, src, req, providerKind, properties)
	if err != nil {
		c.fail(req, err)
		return
	}

	for {
		select {
		case ins, ok := <-inserts:
			if !ok {
				inserts = nil
				continue
			}
			if pushErr := c.router.PushInsert(ctx, req.QueryID, req.SourceID, channels.BootstrapInsert{Element: ins.Element}); pushErr != nil {
				c.fail(req, pushErr)
				return
			}
		case res, ok := <-results:
			if !ok {
				// A failing provider queues its error on errs before closing
				// results; report it instead of leaving the session open.
				err, _ := <-errs
				if err == nil {
					err = errors.New("bootstrap coordinator: provider finished without a result")
				}
				c.fail(req, err)
				return
			}
			c.log.Named("bootstrap-coordinator").
				WithField("session_id", sessionID).
				WithField("query_id", req.QueryID).
				Debug("bootstrap session complete")
			_ = c.router.Complete(req.QueryID, req.SourceID, channels.BootstrapComplete{
				Watermark:    res.Watermark,
				HasWatermark: res.HasWatermark,
			})
			return
		case err, ok := <-errs:
			if !ok {
				continue
			}
			if err != nil {
				c.fail(req, err)
				return
			}
		case <-ctx.Done():
			c.fail(req, ctx.Err())
			return
		}
	}
}

// resolve picks the provider: source's own BeginBootstrap when no explicit
// kind is configured and the source has a native provider, else the
// declarative Provider registry, else noop.
func (c *Coordinator) resolve(ctx context.Context, src source.Source, req channels.BootstrapRequest, providerKind string, properties map[string]any) (<-chan Insert, <-chan Result, <-chan error, error) {
	if providerKind == "" {
		session, err := src.BeginBootstrap(ctx, req.LabelFilter, req.BufferSize)
		if err == nil {
			ins, res, errs := adaptSourceSession(session)
			return ins, res, errs, nil
		}
		if !errors.Is(err, source.ErrNoNativeProvider) {
			return nil, nil, nil, err
		}
		providerKind = "noop"
	}

	provider, err := Build(providerKind, properties)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("bootstrap coordinator: build provider %s: %w", providerKind, err)
	}
	providerReq := Request{SourceID: req.SourceID, QueryID: req.QueryID, LabelFilter: req.LabelFilter, Properties: properties}
	ins, res, errCh := provider.Stream(ctx, providerReq)
	return ins, res, errCh, nil
}

// adaptSourceSession bridges a source.Session (the native-provider shape)
// onto the Provider shape so Coordinator.run can treat both uniformly.
func adaptSourceSession(session source.Session) (<-chan Insert, <-chan Result, <-chan error) {
	inserts := make(chan Insert)
	results := make(chan Result, 1)
	errs := make(chan error, 1)

	go func() {
		defer close(inserts)
		for el := range session.Inserts {
			inserts <- Insert{Element: el}
		}
		done := <-session.Complete
		if done.Err != nil {
			errs <- done.Err
		} else {
			results <- Result{Watermark: done.Watermark, HasWatermark: done.HasWatermark}
		}
		close(results)
		close(errs)
	}()

	return inserts, results, errs
}

func (c *Coordinator) fail(req channels.BootstrapRequest, err error) {
	c.log.Named("bootstrap-coordinator").
		WithField("query_id", req.QueryID).
		WithField("source_id", req.SourceID).
		WithField("error", err).
		Warn("bootstrap session failed")
	_ = c.router.Complete(req.QueryID, req.SourceID, channels.BootstrapComplete{Err: err})
}
