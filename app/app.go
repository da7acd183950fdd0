// Package app assembles the content layer from configuration. Every
// component is constructed explicitly and handed its dependencies; there is
// no global container.
package app

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-content/cache"
	"github.com/saiset-co/sai-content/content"
	"github.com/saiset-co/sai-content/cron"
	"github.com/saiset-co/sai-content/database"
	"github.com/saiset-co/sai-content/feed"
	"github.com/saiset-co/sai-content/invalidation"
	"github.com/saiset-co/sai-content/logger"
	"github.com/saiset-co/sai-content/metrics"
	"github.com/saiset-co/sai-content/repository"
	"github.com/saiset-co/sai-content/session"
	"github.com/saiset-co/sai-content/storage"
	"github.com/saiset-co/sai-content/types"
)

const (
	JobPruneDailyContent = "prune_daily_content"
	JobSweepCache        = "sweep_cache"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	Config     types.ConfigManager
	Logger     types.LoggerManager
	Metrics    types.MetricsManager
	Store      types.KVStore
	Cache      *cache.Cache
	Remote     types.DocumentStore
	Session    *session.Manager
	Catalog    *content.Catalog
	Repository *repository.Repository
	Feed       *feed.WebSocketFeed
	Cron       *cron.Manager

	cacheOptions    []cache.Option
	state           atomic.Value
	shutdownTimeout time.Duration
}

type Option func(*App)

// WithLogger replaces the logger built from configuration.
func WithLogger(logger types.LoggerManager) Option {
	return func(a *App) {
		a.Logger = logger
	}
}

func WithCacheOptions(opts ...cache.Option) Option {
	return func(a *App) {
		a.cacheOptions = append(a.cacheOptions, opts...)
	}
}

func New(ctx context.Context, config types.ConfigManager, opts ...Option) (*App, error) {
	appCtx, cancel := context.WithCancel(ctx)

	a := &App{
		ctx:             appCtx,
		cancel:          cancel,
		Config:          config,
		shutdownTimeout: 15 * time.Second,
	}
	a.state.Store(StateStopped)

	for _, opt := range opts {
		opt(a)
	}

	if err := a.build(); err != nil {
		cancel()
		return nil, err
	}

	return a, nil
}

func (a *App) build() error {
	serviceConfig := a.Config.GetConfig()

	if a.Logger == nil {
		loggerManager, err := logger.NewManager(a.Config)
		if err != nil {
			return types.WrapError(err, "failed to create logger")
		}
		a.Logger = loggerManager
	}

	metricsManager, err := metrics.NewManager(serviceConfig.Metrics, logger.ForComponent(a.Logger, "metrics"))
	if err != nil {
		return err
	}
	a.Metrics = metricsManager

	a.Store, err = storage.NewManager(a.Config, logger.ForComponent(a.Logger, "storage"), a.Metrics)
	if err != nil {
		return types.WrapError(err, "failed to create cache store")
	}

	a.Cache = cache.NewFromConfig(a.Store, invalidation.DefaultRegistry(), logger.ForComponent(a.Logger, "cache"), a.Metrics, a.Config, a.cacheOptions...)

	a.Remote, err = database.NewManager(a.Config, logger.ForComponent(a.Logger, "remote"), a.Metrics)
	if err != nil {
		return types.WrapError(err, "failed to create remote store")
	}

	a.Session = session.NewManager(logger.ForComponent(a.Logger, "session"))
	a.Cache.SubscribeTo(a.Session)

	decoder := content.NewDecoder(logger.ForComponent(a.Logger, "content"))
	a.Catalog, err = content.LoadCatalog(decoder)
	if err != nil {
		return types.WrapError(err, "failed to load static catalog")
	}

	a.Repository = repository.New(a.Cache, a.Remote, a.Session, decoder, a.Catalog, logger.ForComponent(a.Logger, "repository"), serviceConfig.Content)

	if serviceConfig.Feed != nil && serviceConfig.Feed.Enabled {
		a.Feed, err = feed.NewWebSocketFeed(logger.ForComponent(a.Logger, "feed"), a.Metrics, a.Cache, serviceConfig.Feed)
		if err != nil {
			return types.WrapError(err, "failed to create mutation feed")
		}
	}

	if serviceConfig.Cron != nil && serviceConfig.Cron.Enabled {
		if err := a.buildCron(serviceConfig.Cron); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) buildCron(config *types.CronConfig) error {
	a.Cron = cron.NewManager(a.ctx, config, logger.ForComponent(a.Logger, "cron"), a.Metrics)

	if config.PruneDailySpec != "" {
		err := a.Cron.Add(JobPruneDailyContent, config.PruneDailySpec, func(ctx context.Context) error {
			deleted, err := a.Repository.PruneRemoteDailyContent(ctx)
			a.Logger.Info("Pruned remote daily content", zap.Int("deleted", deleted))
			return err
		})
		if err != nil {
			return types.WrapError(err, "failed to schedule daily content pruning")
		}
	}

	if config.SweepCacheSpec != "" {
		err := a.Cron.Add(JobSweepCache, config.SweepCacheSpec, func(ctx context.Context) error {
			removed, err := a.Cache.Sweep(ctx)
			a.Logger.Info("Swept expired cache entries", zap.Int("removed", removed))
			return err
		})
		if err != nil {
			return types.WrapError(err, "failed to schedule cache sweep")
		}
	}

	return nil
}

// Start brings components up in dependency order: storage and remote before
// the background feed and scheduler that use them.
func (a *App) Start() error {
	if !a.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	steps := []struct {
		name      string
		component types.LifecycleManager
	}{
		{"logger", a.Logger},
		{"metrics", a.Metrics},
		{"cache", a.Cache},
		{"remote", a.Remote},
	}

	for _, step := range steps {
		if step.component.IsRunning() {
			continue
		}
		if err := step.component.Start(); err != nil {
			a.setState(StateRunning)
			_ = a.Stop()
			return types.WrapError(err, "failed to start "+step.name)
		}
	}

	g := new(errgroup.Group)
	if a.Feed != nil {
		g.Go(a.Feed.Start)
	}
	if a.Cron != nil {
		g.Go(a.Cron.Start)
	}

	if err := g.Wait(); err != nil {
		a.setState(StateRunning)
		_ = a.Stop()
		return types.WrapError(err, "failed to start background workers")
	}

	a.setState(StateRunning)
	a.Logger.Info("Content layer started",
		zap.String("name", a.Config.GetConfig().Name),
		zap.String("version", a.Config.GetConfig().Version),
		zap.Bool("feed", a.Feed != nil),
		zap.Bool("cron", a.Cron != nil))

	return nil
}

// Stop shuts down background workers first, then drains pending cache
// writes before closing the stores.
func (a *App) Stop() error {
	if !a.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}
	defer a.setState(StateStopped)
	defer a.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	g := new(errgroup.Group)
	if a.Feed != nil && a.Feed.IsRunning() {
		g.Go(a.Feed.Stop)
	}
	if a.Cron != nil && a.Cron.IsRunning() {
		g.Go(a.Cron.Stop)
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var firstErr error
	select {
	case err := <-done:
		firstErr = err
	case <-ctx.Done():
		a.Logger.Warn("Background workers did not stop in time")
		firstErr = ctx.Err()
	}

	for _, component := range []types.LifecycleManager{a.Cache, a.Remote, a.Store, a.Metrics} {
		if !component.IsRunning() {
			continue
		}
		if err := component.Stop(); err != nil {
			a.Logger.Error("Component stop failed", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	a.Logger.Info("Content layer stopped")

	if a.Logger.IsRunning() {
		_ = a.Logger.Stop()
	}

	return firstErr
}

func (a *App) IsRunning() bool {
	return a.getState() == StateRunning
}

// Run starts the app and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-a.ctx.Done():
	}

	return a.Stop()
}

func (a *App) getState() State {
	return a.state.Load().(State)
}

func (a *App) setState(newState State) {
	a.state.Store(newState)
}

func (a *App) transitionState(from, to State) bool {
	return a.state.CompareAndSwap(from, to)
}
