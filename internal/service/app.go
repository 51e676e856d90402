package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/prite36/cropsense/internal/blynk"
	"github.com/prite36/cropsense/internal/config"
	"github.com/prite36/cropsense/internal/database"
	"github.com/prite36/cropsense/internal/discovery"
	"github.com/prite36/cropsense/internal/history"
	"github.com/prite36/cropsense/internal/irrigation"
	"github.com/prite36/cropsense/internal/logging"
	"github.com/prite36/cropsense/internal/mqtt"
	"github.com/prite36/cropsense/internal/registry"
	"github.com/prite36/cropsense/internal/scheduler"
	"github.com/prite36/cropsense/internal/server"
	"github.com/prite36/cropsense/internal/slack"
	"github.com/prite36/cropsense/internal/telemetry"
)

const serviceName = "cropsense"

// Core provides the storage and device-cloud components shared by the API and the debug CLI.
var Core = fx.Options(
	fx.Provide(
		ProvideLogger,
		ProvideDatabase,
		registry.New,
		history.New,
		ProvideBlynk,
		ProvideAggregator,
		ProvideScanner,
		ProvideScheduleStore,
	),
)

// Module is the complete long-running application.
var Module = fx.Options(
	Core,
	fx.Provide(
		ProvideMQTT,
		ProvideSlack,
		ProvideRecorder,
		ProvideHTTPServer,
	),
	fx.Invoke(func(*http.Server, *scheduler.Scheduler) {}),
)

// NewApp builds the fx application for a loaded configuration.
func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Supply(cfg),
		Module,
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
	)
}

func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(serviceName, cfg.Log.Level, cfg.Log.Development)
}

func ProvideDatabase(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	db, err := database.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("closing database connection")
			return database.Close(db)
		},
	})
	return db, nil
}

func ProvideBlynk(cfg *config.Config) *blynk.Client {
	return blynk.NewClient(cfg.Blynk.BaseURL, cfg.Blynk.Timeout)
}

func ProvideAggregator(reg *registry.Registry, device *blynk.Client, cfg *config.Config, logger *zap.Logger) *telemetry.Aggregator {
	return telemetry.NewAggregator(reg, device, cfg.Blynk.MaxConcurrency, logger)
}

func ProvideScanner(reg *registry.Registry, device *blynk.Client, cfg *config.Config, logger *zap.Logger) *discovery.Scanner {
	return discovery.NewScanner(reg, device, cfg.Blynk.MaxConcurrency, logger)
}

// ProvideScheduleStore evaluates schedules in the configured timezone.
func ProvideScheduleStore(db *gorm.DB, cfg *config.Config, logger *zap.Logger) (*irrigation.Store, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	now := func() time.Time { return time.Now().In(loc) }
	return irrigation.NewStore(db, now, logger), nil
}

func ProvideMQTT(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*mqtt.Client, error) {
	client, err := mqtt.NewClient(
		cfg.MQTT.Broker,
		cfg.MQTT.ClientID,
		cfg.MQTT.Username,
		cfg.MQTT.Password,
		cfg.MQTT.TopicPrefix,
		logger.Named("mqtt"),
	)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			client.Close()
			return nil
		},
	})
	return client, nil
}

func ProvideSlack(cfg *config.Config, logger *zap.Logger) *slack.Client {
	return slack.NewClient(cfg.Slack.BotToken, cfg.Slack.ChannelID, logger.Named("slack"))
}

func ProvideRecorder(
	lc fx.Lifecycle,
	cfg *config.Config,
	aggregator *telemetry.Aggregator,
	store *history.Store,
	publisher *mqtt.Client,
	notifier *slack.Client,
	logger *zap.Logger,
) (*scheduler.Scheduler, error) {
	recorder, err := scheduler.NewScheduler(cfg, aggregator, store, publisher, notifier, logger.Named("recorder"))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return recorder.Start()
		},
		OnStop: func(ctx context.Context) error {
			recorder.Stop()
			return nil
		},
	})
	return recorder, nil
}

func ProvideHTTPServer(
	lc fx.Lifecycle,
	cfg *config.Config,
	reg *registry.Registry,
	aggregator *telemetry.Aggregator,
	scanner *discovery.Scanner,
	device *blynk.Client,
	store *history.Store,
	schedules *irrigation.Store,
	logger *zap.Logger,
) *http.Server {
	srv := server.New(server.Deps{
		Config:    cfg,
		Pins:      reg,
		Live:      aggregator,
		Scanner:   scanner,
		Device:    device,
		History:   store,
		Schedules: schedules,
		Logger:    logger.Named("http"),
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			logger.Info("api server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("api server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down api server")
			return srv.Shutdown(ctx)
		},
	})
	return srv
}
