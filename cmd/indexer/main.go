package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/seanblong/relatedwork/internal/config"
	"github.com/seanblong/relatedwork/internal/github"
	"github.com/seanblong/relatedwork/internal/indexer"
	"github.com/seanblong/relatedwork/internal/textindex"
)

func main() {
	fs := pflag.NewFlagSet("relatedwork-indexer", pflag.ExitOnError)
	force := fs.Bool("force", false, "Replace the index contents even if it is populated")
	refresh := fs.Bool("refresh", false, "Refetch pull requests already in the archive cache")

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	zlog.Logger = zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, *force, *refresh)
	stop()
	if err != nil {
		zlog.Error().Err(err).Msg("index load failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Specification, force, refresh bool) error {
	var host indexer.Source
	if cfg.Github.Owner != "" && cfg.Github.Repo != "" {
		host = github.New(cfg.Github.APIURL, cfg.Github.Owner, cfg.Github.Repo, cfg.Github.Token)
	}
	src, err := indexer.NewSource(host, cfg.ArchiveDir, refresh)
	if err != nil {
		return fmt.Errorf("%w: set github owner/repo or an archive directory", err)
	}

	idx, err := textindex.Open(ctx, cfg.Index.Driver, cfg.Index.Path, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := idx.Close(); err != nil {
			zlog.Error().Err(err).Msg("failed to close text index")
		}
	}()

	res, err := indexer.New(src, idx, cfg.EnrichWorkers).Load(ctx, cfg.LoadLimit, force)
	if err != nil {
		return fmt.Errorf("run %s: %w", res.RunID, err)
	}
	zlog.Info().
		Str("run_id", res.RunID).
		Bool("skipped", res.Skipped).
		Int("listed", len(res.Summaries)).
		Int("indexed", res.Indexed).
		Msg("index load finished")
	return nil
}
