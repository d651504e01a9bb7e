package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/listing-trust/internal/match"
	"github.com/sells-group/listing-trust/internal/model"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Rank listings against buyer preferences",
	Long: `Rank the listings in a file by relevance to a preferences document.

Example:
  match --preferences prefs.json --input listings.csv`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		prefsPath, _ := f.GetString("preferences")
		input, _ := f.GetString("input")
		inputFormat, _ := f.GetString("input-format")
		outputFormat, _ := f.GetString("output-format")
		workers, _ := f.GetInt("concurrency")

		prefs, err := readPreferences(prefsPath)
		if err != nil {
			return err
		}
		listings, err := readListingsFile(input, inputFormat)
		if err != nil {
			return err
		}

		results, err := match.Rank(cmd.Context(), prefs, listings, workers)
		if err != nil {
			return eris.Wrap(err, "rank listings")
		}
		return writeOutput(cmd.OutOrStdout(), outputFormat, results)
	},
}

func init() {
	f := matchCmd.Flags()
	f.String("preferences", "", "preferences JSON file (required)")
	f.String("input", "-", "listings file (json, csv or xlsx; - for stdin)")
	f.String("input-format", "", "input format (default from file extension, else json)")
	f.String("output-format", outputJSON, "output format: json or yaml")
	f.Int("concurrency", 4, "listings scored in parallel")
	_ = matchCmd.MarkFlagRequired("preferences")
	rootCmd.AddCommand(matchCmd)
}

func readPreferences(path string) (model.MatchPreferences, error) {
	var prefs model.MatchPreferences
	b, err := os.ReadFile(path)
	if err != nil {
		return prefs, eris.Wrapf(err, "read preferences %s", path)
	}
	if err := json.Unmarshal(b, &prefs); err != nil {
		return prefs, eris.Wrap(err, "parse preferences")
	}
	return prefs, nil
}
