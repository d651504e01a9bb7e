package main

import (
	"github.com/spf13/cobra"
)

var translateCmd = &cobra.Command{
	Use:   "translate [text]",
	Short: "Translate listing text",
	Long: `Translate listing text into the --target language (BCP 47 tag). When the
reasoning service is not configured or fails, the source text is printed
unchanged with translated=false.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target")
		outputFormat, _ := cmd.Flags().GetString("output-format")

		text, err := argOrStdin(cmd, args)
		if err != nil {
			return err
		}

		env, err := initEnv(cmd.Context(), cfg, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Translator.Translate(cmd.Context(), text, target)
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), outputFormat, res)
	},
}

func init() {
	translateCmd.Flags().String("target", "en", "target language tag")
	translateCmd.Flags().String("output-format", outputJSON, "output format: json or yaml")
	rootCmd.AddCommand(translateCmd)
}
