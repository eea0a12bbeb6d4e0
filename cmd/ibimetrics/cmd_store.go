package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/chrissnell/ibimetrics/internal/app"
	"github.com/chrissnell/ibimetrics/internal/batch"
	"github.com/chrissnell/ibimetrics/internal/ibi"
	"github.com/chrissnell/ibimetrics/internal/log"
	"github.com/chrissnell/ibimetrics/internal/store"
	"github.com/spf13/cobra"
)

var batchWorkers int

var importCmd = &cobra.Command{
	Use:   "import NAME",
	Short: "Store a reference/candidate recording pair",
	Long: `Load a reference and a candidate CSV series and store them as a named
recording in the configured database. An existing recording with the same
name is replaced.

Example:
  ibimetrics import subject-01 --reference ecg.csv --candidate radar.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var batchCmd = &cobra.Command{
	Use:   "batch [NAME...]",
	Short: "Evaluate stored recordings and save the results",
	Long: `Evaluate RMSE and TCR for the named recordings, or every stored recording
when no names are given. Results are saved under a new run ID.

Examples:
  ibimetrics batch
  ibimetrics batch subject-01 subject-02 --workers 8 --format json`,
	RunE: runBatch,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.New(cfgData, log.Named("app")).Run(cmd.Context())
	},
}

func init() {
	importCmd.Flags().StringVar(&referencePath, "reference", "", "Reference series CSV file (time,value)")
	importCmd.Flags().StringVar(&candidatePath, "candidate", "", "Candidate series CSV file (time,value)")
	importCmd.MarkFlagRequired("reference")
	importCmd.MarkFlagRequired("candidate")

	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "Recordings evaluated in parallel (default: configured workers)")
	batchCmd.Flags().StringVar(&outputFormat, "format", "text", "Output format: text, json")

	rootCmd.AddCommand(importCmd, batchCmd, serveCmd)
}

func openStore(ctx context.Context) (*store.Store, error) {
	return store.Open(ctx, cfgData.Storage.Driver, cfgData.Storage.DSN, log.Named("store"))
}

func runImport(cmd *cobra.Command, args []string) error {
	ref, cand, err := readPair(referencePath, candidatePath)
	if err != nil {
		return err
	}
	if _, err := ibi.NewResampler(ref); err != nil {
		return fmt.Errorf("reference: %w", err)
	}

	st, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SaveRecording(cmd.Context(), store.Recording{Name: args[0], Reference: ref, Candidate: cand}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %s: %d reference and %d candidate samples\n", args[0], ref.Len(), cand.Len())
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	workers := cfgData.Batch.Workers
	if batchWorkers > 0 {
		workers = batchWorkers
	}

	st, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	evaluator := batch.NewEvaluator(cfgData.RMSEParams(), cfgData.TCRParams(), workers, log.Named("batch"), nil)
	runID, reports, err := evaluator.Run(cmd.Context(), st, st, args)
	if err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return writeJSON(cmd.OutOrStdout(), batchSummary(runID.String(), reports))
	case "text":
		printReports(cmd.OutOrStdout(), runID.String(), reports)
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

type reportRow struct {
	Recording string   `json:"recording"`
	RMSE      *float64 `json:"rmse"`
	RMSEError string   `json:"rmse_error,omitempty"`
	TCR       *float64 `json:"tcr"`
	TCRError  string   `json:"tcr_error,omitempty"`
}

type summary struct {
	RunID   string      `json:"run_id"`
	Reports []reportRow `json:"reports"`
}

func batchSummary(runID string, reports []batch.Report) summary {
	out := summary{RunID: runID, Reports: make([]reportRow, 0, len(reports))}
	for _, r := range reports {
		row := reportRow{Recording: r.Recording}
		if r.RMSE != nil && r.RMSE.Matched > 0 {
			row.RMSE = &r.RMSE.RMSE
		}
		if r.RMSEErr != nil {
			row.RMSEError = r.RMSEErr.Error()
		}
		if r.TCR != nil {
			row.TCR = &r.TCR.TCR
		}
		if r.TCRErr != nil {
			row.TCRError = r.TCRErr.Error()
		}
		out.Reports = append(out.Reports, row)
	}
	return out
}

func printReports(w io.Writer, runID string, reports []batch.Report) {
	fmt.Fprintf(w, "Run %s\n\n", runID)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDING\tRMSE\tTCR (%)")
	for _, row := range batchSummary(runID, reports).Reports {
		rmse := "-"
		switch {
		case row.RMSE != nil:
			rmse = fmt.Sprintf("%.6f", *row.RMSE)
		case row.RMSEError != "":
			rmse = "error: " + row.RMSEError
		}
		tcr := "-"
		switch {
		case row.TCR != nil:
			tcr = fmt.Sprintf("%.2f", *row.TCR)
		case row.TCRError != "":
			tcr = "error: " + row.TCRError
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", row.Recording, rmse, tcr)
	}
	tw.Flush()
}
