package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chrissnell/ibimetrics/internal/ibi"
	"github.com/chrissnell/ibimetrics/internal/log"
	"github.com/spf13/cobra"
)

var (
	referencePath string
	candidatePath string
	outputFormat  string

	rmseIntervals []string
	rmseOnEmpty   string

	tcrBinWidth  float64
	tcrTolerance float64
)

var rmseCmd = &cobra.Command{
	Use:   "rmse",
	Short: "Compute the RMSE of a candidate series against a reference series",
	Long: `Compute the root-mean-square error between candidate IBI values and the
reference series resampled on a 1 ms grid.

Examples:
  ibimetrics rmse --reference ecg.csv --candidate radar.csv
  ibimetrics rmse --reference ecg.csv --candidate radar.csv --interval 0:60 --interval 120:180
  ibimetrics rmse --reference ecg.csv --candidate radar.csv --on-empty nan --format json`,
	Args: cobra.NoArgs,
	RunE: runRMSE,
}

var tcrCmd = &cobra.Command{
	Use:   "tcr",
	Short: "Compute the Time Coverage Rate of a candidate series",
	Long: `Compute the percentage of reference time bins in which the candidate has at
least one value within the error tolerance of the reference.

Examples:
  ibimetrics tcr --reference ecg.csv --candidate radar.csv
  ibimetrics tcr --reference ecg.csv --candidate radar.csv --bin-width 10 --tolerance 0.1`,
	Args: cobra.NoArgs,
	RunE: runTCR,
}

func init() {
	for _, cmd := range []*cobra.Command{rmseCmd, tcrCmd} {
		cmd.Flags().StringVar(&referencePath, "reference", "", "Reference series CSV file (time,value)")
		cmd.Flags().StringVar(&candidatePath, "candidate", "", "Candidate series CSV file (time,value)")
		cmd.Flags().StringVar(&outputFormat, "format", "text", "Output format: text, json")
		cmd.MarkFlagRequired("reference")
		cmd.MarkFlagRequired("candidate")
		rootCmd.AddCommand(cmd)
	}

	rmseCmd.Flags().StringArrayVar(&rmseIntervals, "interval", nil, "Evaluation interval start:end in seconds, repeatable (default: configured intervals or the whole recording)")
	rmseCmd.Flags().StringVar(&rmseOnEmpty, "on-empty", "", "Empty selection policy: error, nan (default: configured policy)")

	tcrCmd.Flags().Float64Var(&tcrBinWidth, "bin-width", 0, "Bin width in seconds (default: configured bin width)")
	tcrCmd.Flags().Float64Var(&tcrTolerance, "tolerance", -1, "Error tolerance in IBI units (default: configured tolerance)")
}

func runRMSE(cmd *cobra.Command, args []string) error {
	params := cfgData.RMSEParams()
	if len(rmseIntervals) > 0 {
		intervals, err := parseIntervals(rmseIntervals)
		if err != nil {
			return err
		}
		params.Intervals = intervals
	}
	if rmseOnEmpty != "" {
		policy, err := parsePolicy(rmseOnEmpty)
		if err != nil {
			return err
		}
		params.OnEmpty = policy
	}

	ref, cand, err := readPair(referencePath, candidatePath)
	if err != nil {
		return err
	}

	res, err := ibi.ComputeRMSE(cand, ref, params, log.Named("rmse"))
	if err != nil {
		return err
	}
	return printRMSE(cmd.OutOrStdout(), outputFormat, res)
}

func runTCR(cmd *cobra.Command, args []string) error {
	params := cfgData.TCRParams()
	if cmd.Flags().Changed("bin-width") {
		params.BinWidth = tcrBinWidth
	}
	if cmd.Flags().Changed("tolerance") {
		params.ErrorTolerance = tcrTolerance
	}

	ref, cand, err := readPair(referencePath, candidatePath)
	if err != nil {
		return err
	}

	res, err := ibi.ComputeTCR(cand, ref, params)
	if err != nil {
		return err
	}
	return printTCR(cmd.OutOrStdout(), outputFormat, res)
}

// parsePolicy accepts the empty-selection policies ComputeRMSE knows
func parsePolicy(s string) (ibi.EmptySelectionPolicy, error) {
	switch p := ibi.EmptySelectionPolicy(s); p {
	case ibi.EmptySelectionError, ibi.EmptySelectionNaN:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown on-empty policy %q, use %q or %q",
			ibi.ErrInvalidParameter, s, ibi.EmptySelectionError, ibi.EmptySelectionNaN)
	}
}

// parseIntervals parses start:end pairs
func parseIntervals(args []string) ([]ibi.Interval, error) {
	intervals := make([]ibi.Interval, 0, len(args))
	for _, arg := range args {
		start, end, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not start:end", ibi.ErrInvalidInterval, arg)
		}
		s, err := strconv.ParseFloat(strings.TrimSpace(start), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad start in %q", ibi.ErrInvalidInterval, arg)
		}
		e, err := strconv.ParseFloat(strings.TrimSpace(end), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad end in %q", ibi.ErrInvalidInterval, arg)
		}
		intervals = append(intervals, ibi.Interval{Start: s, End: e})
	}
	return intervals, nil
}

func printRMSE(w io.Writer, format string, res ibi.RMSEResult) error {
	switch format {
	case "json":
		out := struct {
			RMSE    *float64  `json:"rmse"`
			Diffs   []float64 `json:"diffs"`
			Matched int       `json:"matched"`
		}{Diffs: res.Diffs, Matched: res.Matched}
		if res.Matched > 0 {
			out.RMSE = &res.RMSE
		}
		return writeJSON(w, out)
	case "text":
		fmt.Fprintf(w, "RMSE:    %.6f\n", res.RMSE)
		fmt.Fprintf(w, "Matched: %d\n", res.Matched)
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func printTCR(w io.Writer, format string, res ibi.TCRResult) error {
	switch format {
	case "json":
		return writeJSON(w, res)
	case "text":
		fmt.Fprintf(w, "TCR:     %.2f%%\n", res.TCR)
		fmt.Fprintf(w, "Covered: %d/%d bins\n", res.Covered, res.Bins)
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

