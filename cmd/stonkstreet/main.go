package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stonkstreet/stonkstreet/internal/config"
	"github.com/stonkstreet/stonkstreet/internal/game"
	"github.com/stonkstreet/stonkstreet/internal/history"
	"github.com/stonkstreet/stonkstreet/internal/httpapi"
	"github.com/stonkstreet/stonkstreet/internal/leaderboard"
	"github.com/stonkstreet/stonkstreet/internal/ledger"
	"github.com/stonkstreet/stonkstreet/internal/market"
	"github.com/stonkstreet/stonkstreet/internal/metrics"
	"github.com/stonkstreet/stonkstreet/internal/quotes"
	"github.com/stonkstreet/stonkstreet/internal/scheduler"
	"github.com/stonkstreet/stonkstreet/internal/store"
	"github.com/stonkstreet/stonkstreet/internal/tasks"
)

const (
	appName = "stonkstreet"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	var configPath string

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Paper-trading game server",
		Version: version,
		Long: `Stonkstreet is a paper-trading game: every player starts each
exchange day with the same stake, trades a fixed universe of meme
stocks and crypto at near-real-time prices, and competes on total
portfolio value. Standings archive and reset daily at midnight ET.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the game server",
		Long:  "Starts the HTTP API, the quote cache, the background task runner and the daily reset scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := market.NewSession(market.SystemClock{})
	if err != nil {
		return fmt.Errorf("load exchange timezone: %w", err)
	}

	st, err := store.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer st.Close()

	mx := metrics.New()

	provider := quotes.NewHTTPProvider(cfg.Quotes.BaseURL, cfg.Quotes.Timeout(),
		cfg.Quotes.RatePerSecond, cfg.Quotes.RateBurst)
	cache := quotes.NewCache(provider, session, cfg.Quotes.TTL(), mx)

	journal := history.NewLog(st)
	led := ledger.New(st, session, journal, mx)
	board := leaderboard.New(st, cfg.Game.LeaderboardTopN)

	runner := tasks.NewRunner(cfg.Game.TaskQueueSize, cfg.Game.TaskAttempts,
		cfg.Game.TaskBackoff(), mx)
	runner.Start(ctx)

	svc := game.New(cache, led, journal, board, session, runner, mx)

	daily := scheduler.NewDaily(st, session, board)
	go func() {
		if err := daily.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("scheduler exited")
		}
	}()

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout(),
		WriteTimeout:   cfg.Server.WriteTimeout(),
		IdleTimeout:    cfg.Server.IdleTimeout(),
		RequestTimeout: cfg.Server.RequestTimeout(),
	}, svc, mx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	log.Info().Str("version", version).Msg("stonkstreet started")

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	runner.Wait()
	return nil
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
