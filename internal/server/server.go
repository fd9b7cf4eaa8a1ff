// Package server wires the channel fabric, registry, bootstrap
// coordinator and REST API into one process, following the teacher's
// system/bootstrap wiring-struct pattern (NewEventSystem/EventSystem).
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ruokun-niu/drasi-server/internal/api"
	"github.com/ruokun-niu/drasi-server/internal/channels"
	"github.com/ruokun-niu/drasi-server/internal/config"
	"github.com/ruokun-niu/drasi-server/internal/lifecycle"
	"github.com/ruokun-niu/drasi-server/internal/logging"
	"github.com/ruokun-niu/drasi-server/internal/model"
	"github.com/ruokun-niu/drasi-server/internal/registry"
)

// Server is the fully wired Drasi Server process.
type Server struct {
	doc  *config.Document
	reg  *registry.Registry
	api  *api.Server
	log  *logging.Logger
	http *http.Server

	shutdown *lifecycle.GracefulShutdown
}

// New builds every component from a loaded configuration document.
func New(doc *config.Document, log *logging.Logger) *Server {
	dataRouter := channels.NewDataRouter(doc.Routers.DefaultDispatchBufferCapacity, log)
	bootRouter := channels.NewBootstrapRouter(log)
	subRouter := channels.NewSubscriptionRouter(log)
	store := config.NewStore(doc)
	for _, c := range dataRouter.Collectors() {
		if err := prometheus.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}

	reg := registry.New(dataRouter, bootRouter, subRouter, store, log)

	s := &Server{
		doc:      doc,
		reg:      reg,
		log:      log,
		shutdown: lifecycle.NewGracefulShutdown(),
	}
	s.api = api.NewServer(reg, log)
	s.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", doc.Server.Host, doc.Server.Port),
		Handler: s.api,
	}
	return s
}

// Registry exposes the wired registry, used by main to load the initial
// component set from the configuration document.
func (s *Server) Registry() *registry.Registry { return s.reg }

// LoadComponents registers every component declared in the configuration
// document (spec §4.5: components are created, not auto-started, by
// loading; AutoStart is a separate explicit step).
func (s *Server) LoadComponents() error {
	for _, spec := range s.doc.Sources {
		if err := s.reg.CreateSource(spec); err != nil {
			return fmt.Errorf("load source %s: %w", spec.ID, err)
		}
	}
	for _, spec := range s.doc.Queries {
		if err := s.reg.CreateQuery(spec); err != nil {
			return fmt.Errorf("load query %s: %w", spec.ID, err)
		}
	}
	for _, spec := range s.doc.Reactions {
		if err := s.reg.CreateReaction(spec); err != nil {
			return fmt.Errorf("load reaction %s: %w", spec.ID, err)
		}
	}
	return nil
}

// Run starts the HTTP API and auto-starts every eligible component. It
// blocks until ctx is canceled, then drains in-flight work and stops every
// running component before returning.
func (s *Server) Run(ctx context.Context) error {
	s.reg.AutoStart(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Named("server").WithField("addr", s.http.Addr).Info("listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return s.shutdownAll()
}

// shutdownDrainTimeout bounds how long shutdownAll waits for every
// component's Stop to finish draining before giving up (spec §5).
const shutdownDrainTimeout = 10 * time.Second

func (s *Server) shutdownAll() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDrainTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.log.Named("server").WithField("error", err).Warn("http shutdown error")
	}

	reactions := s.reg.ListReactions()
	queries := s.reg.ListQueries()
	sources := s.reg.ListSources()
	for i := 0; i < len(reactions)+len(queries)+len(sources); i++ {
		s.shutdown.Add()
	}
	s.shutdown.Shutdown()

	go func() {
		for _, info := range reactions {
			if err := s.reg.StopReaction(shutdownCtx, info.ID); err != nil {
				s.log.Named("server").WithField("component_id", info.ID).WithField("error", err).Warn("reaction stop failed")
			}
			s.shutdown.Done()
		}
		for _, info := range queries {
			if err := s.reg.StopQuery(shutdownCtx, info.ID); err != nil {
				s.log.Named("server").WithField("component_id", info.ID).WithField("error", err).Warn("query stop failed")
			}
			s.shutdown.Done()
		}
		for _, info := range sources {
			if err := s.reg.StopSource(shutdownCtx, info.ID); err != nil {
				s.log.Named("server").WithField("component_id", info.ID).WithField("error", err).Warn("source stop failed")
			}
			s.shutdown.Done()
		}
	}()

	if err := s.shutdown.WaitWithTimeout(shutdownDrainTimeout); err != nil {
		s.log.Named("server").WithField("error", err).Warn("shutdown drain deadline exceeded")
	}
	return nil
}

// exitCodeFor maps a top-level error onto the exit codes of spec §6.5.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if _, ok := err.(*config.LoadError); ok {
		return 2
	}
	if model.Is(err, model.ErrConfigParse) || model.Is(err, model.ErrConfigValidate) {
		return 2
	}
	return 3
}

// ExitCodeFor is the exported form of exitCodeFor, used by cmd/drasi-server.
func ExitCodeFor(err error) int { return exitCodeFor(err) }
