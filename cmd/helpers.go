package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/derickschaefer/stationcube/internal/app"
	"github.com/derickschaefer/stationcube/internal/arrowio"
	"github.com/derickschaefer/stationcube/internal/frame"
	"github.com/derickschaefer/stationcube/internal/geo"
	"github.com/derickschaefer/stationcube/internal/model"
	"github.com/derickschaefer/stationcube/internal/pipeline"
	"github.com/derickschaefer/stationcube/internal/render"
	"github.com/derickschaefer/stationcube/internal/source"
	"github.com/derickschaefer/stationcube/internal/transform"
	"github.com/derickschaefer/stationcube/internal/util"
)

// Input formats accepted by --input-format.
const (
	inputCSV   = "csv"
	inputJSONL = "jsonl"
	inputArrow = "arrow"
)

// parseList splits a comma-separated flag value, trimming blanks and
// removing duplicates while preserving order.
func parseList(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// resolveFormat returns the effective format string, falling back to "table".
func resolveFormat(cfgFormat string) string {
	if globalFlags.Format != "" {
		return globalFlags.Format
	}
	if cfgFormat != "" {
		return cfgFormat
	}
	return render.FormatTable
}

// outputWriter returns def, or a file writer when --out is set. The returned
// closer must always be called.
func outputWriter(def io.Writer) (io.Writer, func() error, error) {
	if globalFlags.Out == "" {
		return def, func() error { return nil }, nil
	}
	f, err := os.Create(globalFlags.Out)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}

// detectInputFormat picks the input format from the flag or, when the flag
// is empty, from the file extension.
func detectInputFormat(path, flag string) (string, error) {
	if flag != "" {
		switch flag {
		case inputCSV, inputJSONL, inputArrow:
			return flag, nil
		default:
			return "", fmt.Errorf("unknown input format %q (use csv, jsonl or arrow)", flag)
		}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return inputJSONL, nil
	case ".arrow", ".arrows", ".ipc":
		return inputArrow, nil
	default:
		return inputCSV, nil
	}
}

// readLong reads a long observation table from path, or stdin when path is
// empty or "-".
func readLong(path, format string, cols transform.Columns) (*frame.Frame, error) {
	var r io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	format, err := detectInputFormat(path, format)
	if err != nil {
		return nil, err
	}
	opts := pipeline.Options{
		Strings: []string{cols.ID, cols.Variable},
		Times:   []string{cols.Time},
	}
	switch format {
	case inputJSONL:
		return pipeline.ReadJSONL(r, opts)
	case inputArrow:
		return arrowio.Read(r)
	default:
		return pipeline.ReadCSV(r, opts)
	}
}

// longInput is the shared way commands obtain a long table: a stored
// dataset when --dataset is set, otherwise a file or stdin.
type longInput struct {
	format  string
	dataset string
}

func (in *longInput) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&in.format, "input-format", "", "input format: csv|jsonl|arrow (default: from file extension, csv for stdin)")
	cmd.Flags().StringVar(&in.dataset, "dataset", "", "read a dataset saved with 'fetch obs --save' instead of a file")
	_ = cmd.RegisterFlagCompletionFunc("dataset", completeDatasetFlag)
	_ = cmd.RegisterFlagCompletionFunc("input-format", cobra.FixedCompletions(
		[]string{inputCSV, inputJSONL, inputArrow}, cobra.ShellCompDirectiveNoFileComp))
}

func (in *longInput) load(deps *app.Deps, args []string) (*frame.Frame, error) {
	if in.dataset != "" {
		if err := deps.RequireStore(); err != nil {
			return nil, err
		}
		f, ok, err := deps.Store.GetDataset(in.dataset)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("dataset %q not found\n\n  Use: stationcube store list", in.dataset)
		}
		deps.Logger.Debug("dataset loaded", zap.String("name", in.dataset), zap.Int("rows", f.Len()))
		return f, nil
	}
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	long, err := readLong(path, in.format, deps.Transformer.Columns())
	if err != nil {
		return nil, err
	}
	deps.Logger.Debug("long table read",
		zap.String("path", path),
		zap.Int("rows", long.Len()),
		zap.Strings("columns", long.Names()),
	)
	return long, nil
}

// resolveVars returns the --vars list, or every variable present in long
// when the flag is empty.
func resolveVars(long *frame.Frame, cols transform.Columns, flag string) ([]string, error) {
	if vars := parseList(flag); len(vars) > 0 {
		return vars, nil
	}
	return long.Unique(cols.Variable)
}

// loadStations reads a GeoJSON station file, or fetches the catalogue from
// the source service when path is empty.
func loadStations(ctx context.Context, deps *app.Deps, path string) (*geo.GeoSeries, error) {
	if path == "" {
		if err := deps.Config.ValidateSource(); err != nil {
			return nil, fmt.Errorf("no --stations file given: %w", err)
		}
		return deps.Client.GetStations(ctx, deps.Config.StationIDProperty)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return geo.ReadGeoJSON(f, deps.Config.StationIDProperty)
}

// batchGetObs fetches observations one variable at a time, concurrently,
// respecting deps.Config.Concurrency. Per-variable failures become warnings;
// the call fails only when every request fails.
func batchGetObs(ctx context.Context, deps *app.Deps, opts source.ObsOptions) (*frame.Frame, []string, error) {
	cols := deps.Transformer.Columns()
	if len(opts.Variables) == 0 {
		long, err := deps.Client.GetObservations(ctx, cols, opts)
		return long, nil, err
	}

	type result struct {
		long *frame.Frame
		err  error
	}

	concurrency := deps.Config.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	sem := make(chan struct{}, concurrency)
	results := make([]result, len(opts.Variables))
	var wg sync.WaitGroup

	for i, v := range opts.Variables {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			one := opts
			one.Variables = []string{v}
			long, err := deps.Client.GetObservations(ctx, cols, one)
			results[i] = result{long: long, err: err}
		}()
	}
	wg.Wait()

	// Concatenate in the requested variable order
	var frames []*frame.Frame
	var warnings []string
	var errs util.MultiError
	for i, r := range results {
		switch {
		case errors.Is(r.err, pipeline.ErrEmptyInput):
			warnings = append(warnings, fmt.Sprintf("%s: no observations", opts.Variables[i]))
		case r.err != nil:
			errs.Add(fmt.Errorf("%s: %w", opts.Variables[i], r.err))
			warnings = append(warnings, fmt.Sprintf("%s: %v", opts.Variables[i], r.err))
		default:
			frames = append(frames, r.long)
		}
	}
	if len(frames) == 0 {
		if err := errs.Err(); err != nil {
			return nil, nil, err
		}
		return nil, nil, pipeline.ErrEmptyInput
	}
	long, err := frame.Concat(frames...)
	if err != nil {
		return nil, nil, err
	}
	return long, warnings, nil
}

// newResult wraps data in a Result envelope.
func newResult(kind, command string, data interface{}, items int, start time.Time) *model.Result {
	return &model.Result{
		Kind:        kind,
		GeneratedAt: time.Now().UTC(),
		Command:     command,
		Data:        data,
		Stats: model.ResultStats{
			DurationMs: time.Since(start).Milliseconds(),
			Items:      items,
		},
	}
}

// emit renders result to --out or stdout and prints the footer.
func emit(cmd *cobra.Command, deps *app.Deps, result *model.Result) error {
	w, closeFn, err := outputWriter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if err := render.Render(w, result, resolveFormat(deps.Config.Format)); err != nil {
		closeFn()
		return err
	}
	if err := closeFn(); err != nil {
		return err
	}
	if !deps.Config.Quiet {
		render.PrintFooter(cmd.ErrOrStderr(), result, deps.Config.Verbose)
	}
	return nil
}

// printSimpleTable renders a simple table with headers using tablewriter.
// The add callback is called with row values as variadic strings.
func printSimpleTable(w io.Writer, headers []string, fill func(add func(...string))) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)

	fill(func(cols ...string) {
		tw.Append(cols)
	})
	tw.Render()
}

func humanBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
