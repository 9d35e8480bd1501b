package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/omnichat/webchat/internal/api"
	"github.com/omnichat/webchat/internal/api/router"
	"github.com/omnichat/webchat/internal/config"
	"github.com/omnichat/webchat/internal/logging"
	"github.com/omnichat/webchat/internal/queue"
	conversationservice "github.com/omnichat/webchat/internal/service/conversation"
	"github.com/omnichat/webchat/internal/websocket"
)

func main() {
	app := &cli.App{
		Name:  "webchat-devserver",
		Usage: "In-memory chat backend for developing and testing the web chat client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address, overrides server.addr",
			},
			&cli.StringFlag{
				Name:  "redis",
				Usage: "Redis `ADDR` for fanning pushes out across instances",
			},
			&cli.StringSliceFlag{
				Name:  "origin",
				Usage: "Allowed browser origin, repeatable",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Request worker count",
				Value: 8,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if v := c.String("addr"); v != "" {
		cfg.Server.Addr = v
	}
	if v := c.String("redis"); v != "" {
		cfg.Server.Redis = v
	}
	if v := c.StringSlice("origin"); len(v) > 0 {
		cfg.Server.Origins = v
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	service := conversationservice.NewWithRepository(conversationservice.NewMemoryRepository(), nil)
	service.SetGuestName(cfg.Guest.Name)

	hub := websocket.NewHub()
	go hub.Run(ctx)

	handler := websocket.NewHandler(hub, service, logger, cfg.Server.Origins)
	handler.SetKeepAlive(cfg.Reconnect.KeepAlive)

	publisher, err := newPublisher(ctx, cfg.Server.Redis, hub, logger)
	if err != nil {
		return err
	}

	queueManager := queue.NewRequestQueueManager(64, c.Int("workers"), logger)
	defer queueManager.Shutdown()

	server := api.NewAPIServer(api.ServerConfig{
		ListenAddr:     cfg.Server.Addr,
		Queue:          queueManager,
		Conversations:  service,
		Realtime:       handler,
		Publisher:      publisher,
		Logger:         logger,
		AllowedOrigins: cfg.Server.Origins,
	}, router.All("")...)

	return server.Run(ctx)
}

// newPublisher returns a Redis fan-out publisher when addr is set and an
// in-process one otherwise.
func newPublisher(ctx context.Context, addr string, hub *websocket.Hub, logger zerolog.Logger) (websocket.Publisher, error) {
	if addr == "" {
		return websocket.NewLocalPublisher(hub), nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}

	go func() {
		defer client.Close()
		if err := websocket.SubscribeRedis(ctx, client, websocket.DefaultChannelPrefix, hub, logger); err != nil {
			logger.Error().Err(err).Msg("redis fan-out stopped")
		}
	}()

	return websocket.NewRedisPublisher(client, websocket.DefaultChannelPrefix), nil
}
