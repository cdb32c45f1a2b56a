package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/benvon/family-planner/internal/catalog"
	"github.com/benvon/family-planner/internal/config"
	"github.com/benvon/family-planner/internal/localstore"
	"github.com/benvon/family-planner/internal/logger"
	"github.com/benvon/family-planner/internal/models"
	"github.com/benvon/family-planner/internal/planner"
	"github.com/benvon/family-planner/internal/syncer"
	"go.uber.org/zap"
)

const flushTimeout = 10 * time.Second

// app holds the planner opened for one command invocation
type app struct {
	catalogPath string
	statePath   string

	log        *zap.Logger
	bundle     *catalog.Bundle
	db         *localstore.Store
	dispatcher *syncer.Dispatcher
	store      *planner.Store
}

func (a *app) open(ctx context.Context) error {
	cfg, err := config.LoadLocal()
	if err != nil {
		return err
	}
	if a.catalogPath == "" {
		a.catalogPath = cfg.CatalogPath
	}
	if a.statePath == "" {
		a.statePath = cfg.StatePath
	}
	if a.log, err = logger.NewConsoleLogger(cfg.Debug); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if a.bundle, err = catalog.LoadFile(a.catalogPath); err != nil {
		return err
	}
	if a.db, err = localstore.Open(a.statePath); err != nil {
		return err
	}

	// one local plan per destination
	planID := a.bundle.Destination.ID.String()
	state, err := a.db.LoadState(ctx, planID)
	if err != nil {
		return err
	}
	a.dispatcher = syncer.NewDispatcher(a.db, a.log)
	a.store = planner.NewStore(planID, a.bundle.Activities, planner.WithState(state), planner.WithSink(a.dispatcher))
	a.log.Debug("planner_opened",
		zap.String("destination", a.bundle.Destination.Name),
		zap.String("state_path", a.db.Path),
	)
	return nil
}

// close flushes queued writes and reports any that failed
func (a *app) close(ctx context.Context) error {
	if a.dispatcher == nil {
		return nil
	}
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	closeErr := a.dispatcher.Close(flushCtx)
	failures := a.dispatcher.Failures()
	if err := a.db.Close(); err != nil {
		a.log.Warn("failed_to_close_state_db", zap.Error(err))
	}
	_ = logger.Sync(a.log)

	if closeErr != nil {
		return fmt.Errorf("failed to save changes: %w", closeErr)
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d changes were not saved: %s", len(failures), failures[0].Error)
	}
	return nil
}

// activity resolves an activity id against the catalog
func (a *app) activity(id string) (models.Activity, error) {
	act, ok := a.store.Activity(id)
	if !ok {
		return models.Activity{}, fmt.Errorf("unknown activity %q", id)
	}
	return act, nil
}

// day accepts a day id or its 1-based position in the itinerary
func (a *app) day(ref string) (models.ItineraryDay, error) {
	days := a.store.Snapshot().Itinerary
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(days) {
			return models.ItineraryDay{}, fmt.Errorf("day %d: %w", n, planner.ErrDayNotFound)
		}
		return days[n-1], nil
	}
	return a.store.Day(ref)
}

func glyph(a models.Activity) string {
	if a.ImageEmoji != "" {
		return a.ImageEmoji
	}
	return models.DefaultActivityGlyph
}

func statusMark(s models.ActivityStatus) string {
	switch s {
	case models.StatusWant:
		return "♥"
	case models.StatusDone:
		return "✓"
	default:
		return " "
	}
}
