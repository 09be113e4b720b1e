package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"fit-atlas/internal/application/catalogue"
	"fit-atlas/internal/application/export"
	"fit-atlas/internal/application/financial"
	"fit-atlas/internal/application/geo"
	"fit-atlas/internal/application/index"
	"fit-atlas/internal/application/parser"
	"fit-atlas/internal/application/query"
	"fit-atlas/internal/application/tariff"
	"fit-atlas/internal/pkg/validation"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var errNoCatalogue = errors.New("pass --csv or --sqlite to load a catalogue")

func joinArgs(args []string) string { return strings.Join(args, " ") }

func (o *options) asOfDate() (*time.Time, error) {
	if o.asOf == "" {
		return nil, nil
	}
	d, err := validation.ParseDate(o.asOf)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (o *options) loader() (catalogue.Loader, error) {
	switch {
	case o.csv != "":
		return &catalogue.CSVLoader{Path: o.csv}, nil
	case o.sqlite != "":
		db, err := gorm.Open(sqlite.Open(o.sqlite), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		return &catalogue.GormLoader{DB: db}, nil
	}
	return nil, errNoCatalogue
}

// service builds a query service; withCatalogue loads the index first.
func (o *options) service(ctx context.Context, withCatalogue bool) (*query.Service, error) {
	places, err := geo.Default()
	if err != nil {
		return nil, err
	}
	tariffs, err := tariff.Default()
	if err != nil {
		return nil, err
	}
	svc := &query.Service{
		Parser: parser.New(places),
		Index:  index.New(nil),
		Engine: financial.NewEngine(tariffs, places),
	}
	if !withCatalogue {
		return svc, nil
	}
	l, err := o.loader()
	if err != nil {
		return nil, err
	}
	rows, err := l.Load(ctx)
	if err != nil {
		return nil, err
	}
	snap, stats := index.Build(rows, time.Now().UTC())
	if stats.Rejected > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d catalogue rows rejected\n", stats.Rejected, stats.Total)
	}
	svc.Index.Swap(snap)
	return svc, nil
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runParse(cmd *cobra.Command, opts *options, text string) error {
	svc, err := opts.service(cmd.Context(), false)
	if err != nil {
		return err
	}
	parsed, err := svc.Parse(text)
	if err != nil {
		return err
	}
	return writeJSON(cmd, parsed)
}

func runQuery(cmd *cobra.Command, opts *options, text string, limit int, exportPath string) error {
	svc, err := opts.service(cmd.Context(), true)
	if err != nil {
		return err
	}
	asOf, err := opts.asOfDate()
	if err != nil {
		return err
	}
	resp, err := svc.Query(cmd.Context(), query.Request{Text: text, AsOf: asOf, MaxResults: limit})
	if resp != nil {
		printWarnings(cmd, resp)
	}
	if err != nil {
		return err
	}
	if exportPath != "" {
		format := strings.TrimPrefix(strings.ToLower(filepath.Ext(exportPath)), ".")
		out, err := export.Render(format, resp)
		if err != nil {
			return err
		}
		if err := os.WriteFile(exportPath, out, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", exportPath)
		return nil
	}
	if opts.output == "json" {
		return writeJSON(cmd, resp)
	}
	printResponse(cmd, resp)
	return nil
}

func printWarnings(cmd *cobra.Command, resp *query.Response) {
	for _, w := range resp.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning %s: %s\n", w.Code, w.Message)
	}
	for _, s := range resp.Suggestions {
		fmt.Fprintf(cmd.ErrOrStderr(), "suggestion %s (score %.2f)\n", s.AssetID, s.Score)
	}
}

func printResponse(cmd *cobra.Command, resp *query.Response) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()
	switch {
	case resp.Aggregate != nil:
		value := "n/a"
		if resp.Aggregate.Value != nil {
			value = fmt.Sprintf("%.2f", *resp.Aggregate.Value)
		}
		fmt.Fprintf(w, "%s(%s)\t%s\tsample %d\n", resp.Aggregate.Function, resp.Aggregate.Field, value, resp.Aggregate.SampleSize)
	case len(resp.Partitions) > 0:
		fmt.Fprintln(w, "PARTITION\tCOUNT\tCAPACITY_KW\tANNUAL_INCOME\tREMAINING_VALUE")
		for _, p := range resp.Partitions {
			fmt.Fprintf(w, "%s\t%d\t%.1f\t%.2f\t%.2f\n", p.Label(), p.Count, p.TotalCapacityKW, p.TotalAnnualIncome, p.TotalRemainingValue)
		}
	default:
		fmt.Fprintln(w, "ASSET\tTECHNOLOGY\tKW\tAREA\tEXPIRY\tYEARS\tANNUAL_INCOME\tREMAINING_VALUE\tCATEGORY")
		for _, it := range resp.Results {
			p := it.Projection
			fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\t%s\t%d\t%.2f\t%.2f\t%s\n", it.Asset.ID, it.Asset.Technology, it.Asset.CapacityKW,
				it.Asset.PostcodePrefix, p.ExpiryDate.Format("2006-01-02"), p.YearsRemaining, p.AnnualIncome, p.TotalRemainingValue, p.RepoweringCategory)
		}
		suffix := ""
		if resp.Truncated {
			suffix = " (truncated)"
		}
		fmt.Fprintf(w, "%d of %d matches%s\n", len(resp.Results), resp.TotalMatches, suffix)
	}
}

func runPlaces(cmd *cobra.Command, opts *options, name string) error {
	places, err := geo.Default()
	if err != nil {
		return err
	}
	if name != "" {
		p, ok := places.Lookup(name)
		if !ok {
			return fmt.Errorf("unknown place %q", name)
		}
		if opts.output == "json" {
			return writeJSON(cmd, p)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): %s\n", p.Name, p.Kind, strings.Join(p.Prefixes, ", "))
		return nil
	}
	all := places.Places()
	if opts.output == "json" {
		return writeJSON(cmd, all)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "NAME\tKIND\tPREFIXES")
	for _, p := range all {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, p.Kind, strings.Join(p.Prefixes, " "))
	}
	return nil
}

func runProject(cmd *cobra.Command, opts *options, id string) error {
	svc, err := opts.service(cmd.Context(), true)
	if err != nil {
		return err
	}
	asOf, err := opts.asOfDate()
	if err != nil {
		return err
	}
	d, err := svc.Describe(id, asOf)
	if err != nil {
		return err
	}
	if opts.output == "json" {
		return writeJSON(cmd, d)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()
	p := d.Projection
	fmt.Fprintf(w, "%s\t%s %.1f kW in %s, commissioned %s\n", d.Asset.ID, d.Asset.Technology, d.Asset.CapacityKW,
		d.Asset.PostcodePrefix, d.Asset.CommissionDate.Format("2006-01-02"))
	fmt.Fprintf(w, "rate\t%.2f p/kWh\n", p.RatePencePerKWh)
	fmt.Fprintf(w, "expiry\t%s (%d years, %s)\n", p.ExpiryDate.Format("2006-01-02"), p.YearsRemaining, p.RepoweringCategory)
	fmt.Fprintf(w, "remaining value\t%.2f\n", p.TotalRemainingValue)
	fmt.Fprintln(w, "YEAR\tSTARTS\tDEGRADATION\tINCOME")
	for _, y := range d.Schedule {
		fmt.Fprintf(w, "%d\t%s\t%.4f\t%.2f\n", y.ContractYear, y.Starts.Format("2006-01-02"), y.DegradationFactor, y.Income)
	}
	return nil
}
