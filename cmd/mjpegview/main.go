package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pkg/errors"
	"github.com/torresjeff/mjpeg"
	"github.com/torresjeff/mjpeg/config"
	"github.com/torresjeff/mjpeg/filesink"
	"github.com/torresjeff/mjpeg/mqttsink"
	"github.com/torresjeff/mjpeg/wssink"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "mjpegview.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Fatal(err.Error())
	}
}

func newLogger(cfg config.LogFile) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func run(ctx context.Context, logger *zap.Logger, cfg *config.File) error {
	broadcaster := mjpeg.NewBroadcaster(logger, mjpeg.NewInMemoryStore())
	for _, camera := range cfg.Cameras {
		broadcaster.RegisterCamera(strconv.Itoa(camera))
	}

	var subscribers []mjpeg.Subscriber
	if cfg.Snapshots.Dir != "" {
		saver, err := filesink.NewSaver(logger, cfg.Snapshots.Dir, cfg.SnapshotInterval())
		if err != nil {
			return err
		}
		subscribers = append(subscribers, saver)
	}
	if cfg.MQTT.Broker != "" {
		client, err := mqttsink.Connect(logger, cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			return err
		}
		emitter := mqttsink.NewEmitter(logger, client, cfg.MQTT.Topic)
		defer emitter.Disconnect()
		subscribers = append(subscribers, emitter)
	}
	for _, camera := range cfg.Cameras {
		for _, sub := range subscribers {
			broadcaster.RegisterSubscriber(strconv.Itoa(camera), sub)
		}
	}

	var creds *mjpeg.Credentials
	if cfg.Username != "" {
		creds = &mjpeg.Credentials{Username: cfg.Username, Password: cfg.Password}
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Relay.Addr != "" {
		relay := &wssink.Server{
			Addr:        cfg.Relay.Addr,
			Logger:      logger,
			Broadcaster: broadcaster,
		}
		g.Go(func() error {
			return relay.ListenAndServe(ctx)
		})
	}

	for _, camera := range cfg.Cameras {
		view := mjpeg.NewView(logger, mjpeg.ViewConfig{
			ServerURL:   cfg.ServerURL,
			Camera:      camera,
			Credentials: creds,
			Reconnect: mjpeg.ReconnectConfig{
				MaxRetries:    cfg.Reconnect.MaxRetries,
				RetryDelay:    cfg.RetryDelay(),
				MaxRetryDelay: cfg.MaxRetryDelay(),
			},
			StallTimeout: cfg.StallTimeout(),
		}, broadcaster.Sink(strconv.Itoa(camera)))

		if err := view.Start(ctx); err != nil {
			return err
		}
		logger.Info("[mjpegview] Watching camera", zap.Int("camera", camera), zap.String("url", view.Config().StreamURL()))
		g.Go(func() error {
			<-ctx.Done()
			view.Teardown()
			return nil
		})
	}

	return g.Wait()
}
