package main

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/listing-trust/internal/model"
)

var extractCmd = &cobra.Command{
	Use:   "extract [text]",
	Short: "Extract listing fields from a free-text message",
	Long: `Extract intent, category, route, dates and price from a marketplace
message. The text comes from the argument or stdin. --prior carries the
fields from the previous turn of a conversation as JSON.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		priorJSON, _ := cmd.Flags().GetString("prior")
		outputFormat, _ := cmd.Flags().GetString("output-format")

		text, err := argOrStdin(cmd, args)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return eris.New("text is required")
		}

		var prior *model.ExtractedFields
		if priorJSON != "" {
			prior = &model.ExtractedFields{}
			if err := json.Unmarshal([]byte(priorJSON), prior); err != nil {
				return eris.Wrap(err, "parse --prior")
			}
		}

		env, err := initEnv(cmd.Context(), cfg, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		return writeOutput(cmd.OutOrStdout(), outputFormat, env.Extractor.Extract(cmd.Context(), text, prior))
	},
}

func init() {
	extractCmd.Flags().String("prior", "", "fields from the previous turn, as JSON")
	extractCmd.Flags().String("output-format", outputJSON, "output format: json or yaml")
	rootCmd.AddCommand(extractCmd)
}

// argOrStdin returns the single positional argument, or all of stdin.
func argOrStdin(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", eris.Wrap(err, "read stdin")
	}
	return string(b), nil
}
