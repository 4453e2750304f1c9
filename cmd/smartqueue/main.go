// Command smartqueue runs the token scheduling engine behind a DWP server.
// Configuration comes from SMARTQUEUE_* environment variables.
//
// Usage:
//
//	SMARTQUEUE_API_KEYS=desk-key:counter_operator SMARTQUEUE_STORE=redis smartqueue
//
// Then, for example:
//
//	curl -X POST http://localhost:8080/dwp/rpc \
//	  -H "Content-Type: application/json" \
//	  -d '{"id":"req-1","type":"request","method":"queue.list","token":"desk-key","data":{}}'
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Jiyabhaviksadaria/smartqueue"
	audithook "github.com/Jiyabhaviksadaria/smartqueue/audit_hook"
	"github.com/Jiyabhaviksadaria/smartqueue/dwp"
	"github.com/Jiyabhaviksadaria/smartqueue/engine"
	"github.com/Jiyabhaviksadaria/smartqueue/event"
	mqtthook "github.com/Jiyabhaviksadaria/smartqueue/mqtt_hook"
	relayhook "github.com/Jiyabhaviksadaria/smartqueue/relay_hook"
	"github.com/Jiyabhaviksadaria/smartqueue/store"
	"github.com/Jiyabhaviksadaria/smartqueue/store/memory"
	mongostore "github.com/Jiyabhaviksadaria/smartqueue/store/mongo"
	"github.com/Jiyabhaviksadaria/smartqueue/store/postgres"
	redisstore "github.com/Jiyabhaviksadaria/smartqueue/store/redis"
	"github.com/Jiyabhaviksadaria/smartqueue/stream"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
	webhookhook "github.com/Jiyabhaviksadaria/smartqueue/webhook_hook"
)

func main() {
	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("smartqueue exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// closers runs cleanup functions in reverse registration order.
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

func (c *closers) close(logger *slog.Logger) {
	for i := len(*c) - 1; i >= 0; i-- {
		if err := (*c)[i](); err != nil {
			logger.Warn("close error", slog.String("error", err.Error()))
		}
	}
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	var cleanup closers
	defer cleanup.close(logger)

	// ──────────────────────────────────────────────────
	// 1. Store
	// ──────────────────────────────────────────────────

	s, numbers, err := openStore(ctx, cfg, logger, &cleanup)
	if err != nil {
		return err
	}
	if err := s.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// ──────────────────────────────────────────────────
	// 2. Runtime and engine
	// ──────────────────────────────────────────────────

	rt, err := smartqueue.New(
		smartqueue.WithConfig(cfg.Runtime),
		smartqueue.WithStore(s),
		smartqueue.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	broker := stream.NewBroker(logger)
	opts := []engine.Option{
		engine.WithExtension(broker),
		engine.WithExtension(event.NewJournal(s)),
		engine.WithExtension(audithook.New(auditRecorder(s, logger),
			audithook.WithLogger(logger),
			audithook.WithClock(rt.Now),
		)),
	}
	if numbers != nil {
		opts = append(opts, engine.WithNumberAllocator(numbers))
	}

	hooks, relay, err := buildHooks(cfg, logger, &cleanup)
	if err != nil {
		return err
	}
	opts = append(opts, hooks...)

	eng, err := engine.Build(rt, opts...)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	if err := eng.Restore(ctx); err != nil {
		return err
	}
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	if relay != nil {
		if err := relay.Start(ctx); err != nil {
			return fmt.Errorf("start relay: %w", err)
		}
	}

	// ──────────────────────────────────────────────────
	// 3. DWP server
	// ──────────────────────────────────────────────────

	dwpServer := dwp.NewServer(broker, dwp.NewHandler(eng, broker, logger),
		dwp.WithAuth(authenticator(cfg.Auth, logger)),
		dwp.WithLogger(logger),
	)
	mux := http.NewServeMux()
	dwpServer.RegisterRoutes(mux)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("dwp server listening",
			slog.String("addr", cfg.Addr),
			slog.String("store", cfg.Store),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// ──────────────────────────────────────────────────
	// 4. Run until signalled, then drain
	// ──────────────────────────────────────────────────

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		runErr = fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Runtime.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if err := dwpServer.Close(); err != nil {
		logger.Warn("dwp close error", slog.String("error", err.Error()))
	}
	if err := eng.Stop(shutdownCtx); err != nil {
		logger.Error("engine shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("stopped")
	return runErr
}

// openStore connects the configured primary and, when a Mongo URI is set,
// moves history and the change journal onto Mongo. The returned allocator
// is non-nil for backends that share token numbers across processes.
func openStore(ctx context.Context, cfg Config, logger *slog.Logger, cleanup *closers) (store.Store, token.NumberAllocator, error) {
	var (
		primary store.Store
		numbers token.NumberAllocator
	)

	switch cfg.Store {
	case driverMemory:
		primary = memory.New()
	case driverRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cleanup.add(client.Close)
		rs := redisstore.New(client, redisstore.WithLogger(logger))
		primary, numbers = rs, rs
	case driverPostgres:
		ps, err := postgres.New(ctx, cfg.PostgresDSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		primary = ps
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	if err := primary.Ping(ctx); err != nil {
		return nil, nil, fmt.Errorf("ping %s: %w", cfg.Store, err)
	}
	if cfg.Mongo.URI == "" {
		return primary, numbers, nil
	}

	client, err := mongod.Connect(options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	cleanup.add(func() error { return client.Disconnect(context.Background()) })

	corpus := mongostore.New(client.Database(cfg.Mongo.Database), mongostore.WithLogger(logger))
	if err := corpus.Ping(ctx); err != nil {
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	if err := corpus.Migrate(ctx); err != nil {
		return nil, nil, fmt.Errorf("migrate mongo: %w", err)
	}
	logger.Info("history and journal on mongo", slog.String("database", cfg.Mongo.Database))
	return &store.Split{Store: primary, Corpus: corpus}, numbers, nil
}

// auditRecorder returns the store when it keeps an audit trail and a log
// sink otherwise.
func auditRecorder(s store.Store, logger *slog.Logger) audithook.Recorder {
	if r, ok := s.(audithook.Recorder); ok {
		return r
	}
	if split, ok := s.(*store.Split); ok {
		if r, ok := split.Store.(audithook.Recorder); ok {
			return r
		}
	}
	return audithook.RecorderFunc(func(_ context.Context, evt *audithook.AuditEvent) error {
		logger.Info("audit",
			slog.String("action", evt.Action),
			slog.String("resource_id", evt.ResourceID),
			slog.String("actor_id", evt.ActorID),
			slog.String("outcome", evt.Outcome),
		)
		return nil
	})
}

// buildHooks creates the optional broadcast extensions. The relay hook is
// returned separately because its dispatcher needs starting.
func buildHooks(cfg Config, logger *slog.Logger, cleanup *closers) ([]engine.Option, *relayhook.Extension, error) {
	var (
		opts  []engine.Option
		relay *relayhook.Extension
	)

	if len(cfg.Kafka.Brokers) > 0 {
		outbox, err := relayhook.OpenOutbox(cfg.Kafka.OutboxDir)
		if err != nil {
			return nil, nil, err
		}
		cleanup.add(outbox.Close)

		var publisher interface {
			relayhook.Publisher
			io.Closer
		}
		switch cfg.Kafka.Client {
		case kafkaClientSarama:
			publisher, err = relayhook.NewSaramaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
			if err != nil {
				return nil, nil, err
			}
		default:
			publisher = relayhook.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		}
		cleanup.add(publisher.Close)

		relay = relayhook.New(outbox, publisher, relayhook.WithLogger(logger))
		opts = append(opts, engine.WithExtension(relay))
		logger.Info("kafka relay enabled",
			slog.String("client", cfg.Kafka.Client),
			slog.String("topic", cfg.Kafka.Topic),
		)
	}

	if cfg.MQTT.Broker != "" {
		client, err := mqtthook.Dial(mqtthook.ClientConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		})
		if err != nil {
			return nil, nil, err
		}
		cleanup.add(func() error { client.Close(); return nil })
		opts = append(opts, engine.WithExtension(mqtthook.New(client,
			mqtthook.WithPrefix(cfg.MQTT.Prefix),
			mqtthook.WithQoS(cfg.MQTT.QoS),
			mqtthook.WithLogger(logger),
		)))
	}

	if len(cfg.Webhook.URLs) > 0 {
		whOpts := []webhookhook.Option{webhookhook.WithLogger(logger)}
		if cfg.Webhook.Secret != "" {
			whOpts = append(whOpts, webhookhook.WithSecret(cfg.Webhook.Secret))
		}
		opts = append(opts, engine.WithExtension(webhookhook.New(cfg.Webhook.URLs, whOpts...)))
	}

	return opts, relay, nil
}

// authenticator combines the configured credential sources. JWTs are
// tried before API keys.
func authenticator(cfg AuthConfig, logger *slog.Logger) dwp.Authenticator {
	if cfg.Insecure {
		logger.Warn("dwp authentication disabled; every caller is admin")
		return &dwp.NoopAuthenticator{}
	}
	var auths []dwp.Authenticator
	if cfg.JWTSecret != "" {
		var jwtOpts []dwp.JWTOption
		if cfg.JWTIssuer != "" {
			jwtOpts = append(jwtOpts, dwp.WithIssuer(cfg.JWTIssuer))
		}
		auths = append(auths, dwp.NewJWTAuthenticator([]byte(cfg.JWTSecret), jwtOpts...))
	}
	if len(cfg.APIKeys) > 0 {
		auths = append(auths, dwp.NewAPIKeyAuthenticator(cfg.APIKeys...))
	}
	if len(auths) == 1 {
		return auths[0]
	}
	return dwp.NewCompositeAuthenticator(auths...)
}
