package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	csv    string
	sqlite string
	asOf   string
	output string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "fitctl",
		Short:         "Query the feed-in tariff installation catalogue from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&opts.csv, "csv", os.Getenv("CATALOGUE_CSV"), "catalogue CSV file")
	rootCmd.PersistentFlags().StringVar(&opts.sqlite, "sqlite", "", "sqlite database holding the fit_installations table")
	rootCmd.PersistentFlags().StringVar(&opts.asOf, "as-of", "", "valuation date (YYYY-MM-DD), default today")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "output format: table or json")

	rootCmd.AddCommand(parseCmd(opts))
	rootCmd.AddCommand(queryCmd(opts))
	rootCmd.AddCommand(placesCmd(opts))
	rootCmd.AddCommand(projectCmd(opts))
	return rootCmd
}

func parseCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "parse [question]",
		Short: "Show the structured filter understood from a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd, opts, joinArgs(args))
		},
	}
}

func queryCmd(opts *options) *cobra.Command {
	var limit int
	var exportPath string
	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Answer a question against the catalogue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, joinArgs(args), limit, exportPath)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum rows to return")
	cmd.Flags().StringVar(&exportPath, "export", "", "write the answer to an .xlsx or .pdf file")
	return cmd
}

func placesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "places [name]",
		Short: "List known places or resolve one to postcode areas",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlaces(cmd, opts, joinArgs(args))
		},
	}
}

func projectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "project [asset-id]",
		Short: "Show the financial projection and yearly schedule of one installation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProject(cmd, opts, args[0])
		},
	}
}
