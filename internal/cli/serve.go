package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_pos/internal/cache"
	"github.com/fjod/go_pos/internal/channel"
	"github.com/fjod/go_pos/internal/checkout"
	"github.com/fjod/go_pos/internal/config"
	posgrpc "github.com/fjod/go_pos/internal/grpc"
	apihttp "github.com/fjod/go_pos/internal/http"
	"github.com/fjod/go_pos/internal/ledger"
	"github.com/fjod/go_pos/internal/logger"
	"github.com/fjod/go_pos/internal/store"
	"github.com/fjod/go_pos/internal/submit"
	"github.com/fjod/go_pos/internal/transport"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the terminal",
		Long: `Run the terminal: keep the local store in sync with the authoritative
store and serve the local API and gRPC health.

Settings are read from the environment and an optional .env file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.New("terminal", cfg.LogLevel, cfg.LogFormat).With("terminal_id", cfg.TerminalID)
	slog.SetDefault(log)

	rates, err := config.LoadRates(cfg.RatesFile)
	if err != nil {
		return err
	}

	tcfg := transport.DefaultConfig(cfg.StoreBaseURL)
	tcfg.TerminalID = cfg.TerminalID
	tcfg.RequestTimeout = cfg.RequestTimeout
	tcfg.RatePerSecond = cfg.RatePerSecond
	client := transport.NewClient(tcfg, log)

	st := store.New(log)

	retrier := submit.NewRetrier()
	retrier.Timeout = cfg.SubmitTimeout
	retrier.OnAttempt = func(a submit.Attempt) {
		if a.Err != nil {
			log.Warn("submission attempt failed", "attempt", a.Number, "retryable", a.Retryable, "error", a.Err)
		}
	}
	submitter := submit.NewService(submit.NewDeduplicator(submit.WithLogger(log)), retrier)
	defer submitter.Close()

	pollerOpts := []channel.PollerOption{
		channel.WithInterval(cfg.PollInterval),
		channel.WithPollerLogger(log),
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, starting without snapshot cache", "addr", cfg.RedisAddr, "error", err)
		} else {
			pollerOpts = append(pollerOpts, channel.WithSnapshots(cache.NewSnapshotCache(rdb, cfg.TerminalID)))
		}
	}
	poller := channel.NewPoller(client, st, pollerOpts...)

	source := channel.NewKafkaSource(channel.KafkaConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
		GroupID: cfg.KafkaGroupID,
	}, log)
	supervisor := channel.NewSupervisor(source, poller, st, channel.DefaultSupervisorConfig(), log)

	health := posgrpc.NewHealthServer(log)
	supervisor.OnStateChange = health.ChannelStateChanged

	granted := make(checkout.Permissions, 0, len(cfg.Permissions))
	for _, p := range cfg.Permissions {
		granted = append(granted, checkout.Permission(p))
	}
	machine := checkout.NewMachine(client, submitter, st, apihttp.OperatorAuthorizer{}, log)
	cash := ledger.NewLedger(client, st, submitter, log)
	desk := ledger.NewDesk(client, client, st, submitter, rates.General, log)

	router := apihttp.NewRouter(apihttp.RouterConfig{
		Checkout:    apihttp.NewCheckoutHandler(machine, st, cfg.SubmitTimeout),
		Cash:        apihttp.NewCashHandler(cash, cfg.SubmitTimeout),
		Coworking:   apihttp.NewCoworkingHandler(desk, st, cfg.SubmitTimeout),
		Collections: apihttp.NewCollectionsHandler(st),
		Orders:      apihttp.NewOrdersHandler(client, st, submitter, cfg.SubmitTimeout),
		Channel:     apihttp.NewChannelHandler(supervisor),
		Health: func() apihttp.Health {
			return apihttp.Health{
				Status:      "ok",
				Channel:     string(supervisor.State()),
				Polling:     supervisor.Polling(),
				Checkout:    machine.State().String(),
				Submissions: submitter.Pending(),
			}
		},
		Granted: granted,
		Timeout: cfg.SubmitTimeout + 5*time.Second,
		Logger:  log,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.SubmitTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		supervisor.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return health.Serve(ctx, lis)
	})
	g.Go(func() error {
		log.Info("terminal API starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down terminal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("terminal stopped")
	return err
}
