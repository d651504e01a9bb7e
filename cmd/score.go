package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/listing-trust/internal/model"
	"github.com/sells-group/listing-trust/internal/pipeline"
	"github.com/sells-group/listing-trust/internal/store"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score listings from a file",
	Long: `Score every listing in a JSON, CSV or XLSX file and print the published
results in input order. A listing that fails validation is reported with
its error and does not stop the batch.

Examples:
  # Score a JSON array from stdin
  score < listings.json

  # Score a spreadsheet with 8 workers and record audits in the store
  score --input listings.xlsx --concurrency 8 --audit

  # YAML output
  score --input listings.csv --output-format yaml`,
	RunE: runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.String("input", "-", "listings file (json, csv or xlsx; - for stdin)")
	f.String("input-format", "", "input format (default from file extension, else json)")
	f.String("output-format", outputJSON, "output format: json or yaml")
	f.Int("concurrency", 4, "listings scored in parallel")
	f.String("user", "", "user id recorded on audits")
	f.Bool("audit", false, "append trust audits to the configured store")

	rootCmd.AddCommand(scoreCmd)
}

// scoreOutcome is one line of batch output.
type scoreOutcome struct {
	ListingID string                 `json:"listingId,omitempty" yaml:"listingId,omitempty"`
	Result    *model.PublishedResult `json:"result,omitempty" yaml:"result,omitempty"`
	Error     string                 `json:"error,omitempty" yaml:"error,omitempty"`
}

type evaluator interface {
	Evaluate(ctx context.Context, req pipeline.Request) (pipeline.Evaluation, error)
}

func runScore(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f := cmd.Flags()
	input, _ := f.GetString("input")
	inputFormat, _ := f.GetString("input-format")
	outputFormat, _ := f.GetString("output-format")
	concurrency, _ := f.GetInt("concurrency")
	userID, _ := f.GetString("user")
	audit, _ := f.GetBool("audit")

	listings, err := readListingsFile(input, inputFormat)
	if err != nil {
		return err
	}

	env, err := initEnv(ctx, cfg, envOptions{Store: audit})
	if err != nil {
		return err
	}
	defer env.Close()

	log := zap.L().With(zap.String("command", "score"))
	log.Info("scoring listings", zap.Int("count", len(listings)), zap.Int("concurrency", concurrency))

	outcomes, err := scoreListings(ctx, env.Pipeline, listings, concurrency, userID)
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), outputFormat, outcomes)
}

// readListingsFile loads listings from path, picking the format from the
// flag, then the extension, then JSON.
func readListingsFile(path, format string) ([]*model.Listing, error) {
	if format == "" {
		format = store.FormatFromPath(path)
	}
	if format == "" {
		format = store.FormatJSON
	}

	in, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer in.Close() //nolint:errcheck

	listings, err := store.ReadListings(in, format)
	if err != nil {
		return nil, eris.Wrap(err, "read listings")
	}
	return listings, nil
}

// scoreListings evaluates listings on up to concurrency workers and keeps
// input order. Per-listing failures land in the outcome; only cancellation
// aborts the batch.
func scoreListings(ctx context.Context, p evaluator, listings []*model.Listing, concurrency int, userID string) ([]scoreOutcome, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	outcomes := make([]scoreOutcome, len(listings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, l := range listings {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out := scoreOutcome{ListingID: l.ID}
			ev, err := p.Evaluate(gctx, pipeline.Request{UserID: userID, Listing: l})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				zap.L().Warn("score: listing rejected", zap.String("listing_id", l.ID), zap.Error(err))
				out.Error = err.Error()
			} else {
				out.Result = &ev.Result
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "score listings")
	}
	return outcomes, nil
}
