package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listing-trust/internal/store"
)

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Manage stored listings",
}

var listingsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk import listings from JSON, CSV or XLSX",
	Long: `Insert or replace listings by id. CSV and XLSX files need a header row
with an id column; other recognised columns are category, title,
description, origin, destination, location, start_date, end_date, price,
currency and images (semicolon separated).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		input, _ := cmd.Flags().GetString("input")
		inputFormat, _ := cmd.Flags().GetString("input-format")

		listings, err := readListingsFile(input, inputFormat)
		if err != nil {
			return err
		}

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		n, err := st.ImportListings(ctx, listings)
		if err != nil {
			return eris.Wrap(err, "import listings")
		}
		zap.L().Info("import complete", zap.Int64("rows", n), zap.Int("listings", len(listings)), zap.String("input", input))
		return nil
	},
}

func init() {
	listingsImportCmd.Flags().String("input", "", "listings file (required)")
	listingsImportCmd.Flags().String("input-format", "", "input format (default from file extension, else json)")
	_ = listingsImportCmd.MarkFlagRequired("input")

	listingsCmd.AddCommand(listingsImportCmd)
	rootCmd.AddCommand(listingsCmd)
}
