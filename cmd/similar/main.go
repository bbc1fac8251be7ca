package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/seanblong/relatedwork/internal/config"
	"github.com/seanblong/relatedwork/internal/jira"
	"github.com/seanblong/relatedwork/internal/search"
	"github.com/seanblong/relatedwork/internal/similarity"
)

func main() {
	fs := pflag.NewFlagSet("relatedwork-similar", pflag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print the result as JSON")

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	zlog.Logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: relatedwork-similar [flags] ISSUE-KEY")
		fs.Usage()
		os.Exit(2)
	}
	if cfg.Jira.BaseURL == "" {
		zlog.Fatal().Msg("jira base URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jc := jira.New(cfg.Jira.BaseURL, cfg.Jira.Email, cfg.Jira.APIToken)
	svc := search.NewService(nil, jc, similarity.NewRetriever(jc, cfg.EnrichWorkers))
	res, err := svc.Similar(ctx, fs.Arg(0), similarity.Options{
		MinScore: similarity.MinScore(cfg.MinScore),
		Limit:    cfg.MaxResults,
	})
	if err != nil {
		zlog.Error().Err(err).Str("key", fs.Arg(0)).Msg("similarity lookup failed")
		stop()
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			zlog.Fatal().Err(err).Msg("encode result")
		}
		return
	}
	if err := printSimilar(os.Stdout, res); err != nil {
		zlog.Fatal().Err(err).Msg("write result")
	}
}

func printSimilar(w io.Writer, res search.Similar) error {
	fmt.Fprintf(w, "%s  %s\n\n", res.Seed.Key, res.Seed.Title)
	if len(res.Related) == 0 {
		_, err := fmt.Fprintln(w, "no related issues")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tKEY\tSTATUS\tTITLE\tWHY")
	for _, r := range res.Related {
		fmt.Fprintf(tw, "%.0f\t%s\t%s\t%s\t%s\n", r.Score, r.Candidate.Key, r.Candidate.Status, r.Candidate.Title, r.Justification())
		for _, cp := range r.Candidate.ChangeProposals {
			fmt.Fprintf(tw, "\t\t\t  %s %s\t%s\n", cp.Status, cp.Name, cp.URL)
		}
	}
	return tw.Flush()
}
