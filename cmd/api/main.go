package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/seanblong/relatedwork/internal/auth"
	"github.com/seanblong/relatedwork/internal/config"
	"github.com/seanblong/relatedwork/internal/github"
	"github.com/seanblong/relatedwork/internal/indexer"
	"github.com/seanblong/relatedwork/internal/jira"
	"github.com/seanblong/relatedwork/internal/metrics"
	"github.com/seanblong/relatedwork/internal/search"
	"github.com/seanblong/relatedwork/internal/similarity"
	"github.com/seanblong/relatedwork/internal/textindex"
)

func main() {
	fs := pflag.NewFlagSet("relatedwork-api", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	zlog.Logger = logger
	logger.Info().
		Str("index_driver", cfg.Index.Driver).
		Str("log_level", cfg.LogLevel).
		Bool("auth_enabled", cfg.Auth.Enabled).
		Msg("starting relatedwork api")

	authn, err := auth.New(cfg.Auth.JwtSecret, cfg.Auth.TokenTTL, cfg.Auth.Enabled)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid auth configuration")
	}

	metrics.Register()

	ctx := context.Background()
	idx, err := textindex.Open(ctx, cfg.Index.Driver, cfg.Index.Path, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open text index")
	}
	defer func() {
		if err := idx.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close text index")
		}
	}()

	srv := &server{
		text: search.NewService(idx, nil, nil),
		auth: authn,
		defaults: defaults{
			SearchResults: cfg.SearchResults,
			MaxResults:    cfg.MaxResults,
			MinScore:      cfg.MinScore,
			LoadLimit:     cfg.LoadLimit,
		},
	}

	if cfg.Jira.BaseURL != "" {
		jc := jira.New(cfg.Jira.BaseURL, cfg.Jira.Email, cfg.Jira.APIToken)
		srv.similar = search.NewService(idx, jc, similarity.NewRetriever(jc, cfg.EnrichWorkers))
		srv.issues = jc
		logger.Info().Str("jira", cfg.Jira.BaseURL).Msg("issue tracker configured")
	} else {
		logger.Warn().Msg("no jira base URL, /similar and /issues disabled")
	}

	var host indexer.Source
	if cfg.Github.Owner != "" && cfg.Github.Repo != "" {
		host = github.New(cfg.Github.APIURL, cfg.Github.Owner, cfg.Github.Repo, cfg.Github.Token)
	}
	if src, err := indexer.NewSource(host, cfg.ArchiveDir, false); err == nil {
		srv.loader = indexer.New(src, idx, cfg.EnrichWorkers)
	} else {
		logger.Warn().Err(err).Msg("/index/load disabled")
	}

	address := fmt.Sprintf(":%d", cfg.Port)
	s := &http.Server{
		Addr:              address,
		Handler:           srv.routes(logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info().Str("addr", s.Addr).Msg("api server listening")
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-quit
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
}
