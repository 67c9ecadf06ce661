package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/songzhibin97/gkit/generator"

	"github.com/songzhibin97/approval-engine/config"
	"github.com/songzhibin97/approval-engine/directory"
	"github.com/songzhibin97/approval-engine/events"
	"github.com/songzhibin97/approval-engine/notify"
	"github.com/songzhibin97/approval-engine/rules"
	"github.com/songzhibin97/approval-engine/storage"
	"github.com/songzhibin97/approval-engine/workflow"
)

// runtime bundles what every command needs.
type runtime struct {
	cfg    *config.Config
	log    zerolog.Logger
	store  storage.Storage
	bus    *events.EventBus
	engine *workflow.Engine
	close  func()
}

func newRuntime(cfg *config.Config) (*runtime, error) {
	log := cfg.Logger()

	store, closeStore, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	bus := events.NewEventBus(events.WithErrorHandler(func(event events.Event, err error) {
		log.Error().Err(err).Str("event", string(event.Type)).Uint64("request_id", event.RequestID).Msg("event handler failed")
	}))
	engine, err := newEngine(cfg, store, bus, log)
	if err != nil {
		bus.Stop()
		closeStore()
		return nil, err
	}
	return &runtime{
		cfg:    cfg,
		log:    log,
		store:  store,
		bus:    bus,
		engine: engine,
		close: func() {
			bus.Stop()
			closeStore()
		},
	}, nil
}

func loadRuntime() (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return newRuntime(cfg)
}

func newStore(cfg *config.Config) (storage.Storage, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverRedis:
		store, err := storage.NewRedisStorage(cfg.Storage.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Redis storage: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return storage.NewMemoryStorage(), func() {}, nil
	}
}

func newEngine(cfg *config.Config, store storage.Storage, bus *events.EventBus, log zerolog.Logger) (*workflow.Engine, error) {
	snowflake := generator.NewSnowflake(cfg.Node.Epoch, cfg.Node.MachineID)
	return workflow.NewEngine(snowflake, store,
		workflow.WithLogger(log),
		workflow.WithEventBus(bus),
		workflow.WithRouter(rules.NewRouter(cfg.Routing.Routes, rules.NewRouteEvaluator())),
		workflow.WithDirectory(directory.NewStatic(cfg.Directory.Users)),
		workflow.WithNotifier(notify.Multi{
			notify.NewStoreEmitter(store, nil),
			notify.NewLogEmitter(log),
		}),
	)
}
