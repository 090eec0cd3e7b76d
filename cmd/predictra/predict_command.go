package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"predictra/internal/ipc"
)

func newPredictCommand(ctx *commandContext) *cobra.Command {
	var ownerID string
	var columns []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "predict <machine-id> <csv-path>",
		Short: "Run an anomaly prediction against a trained machine",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Predict(ipc.PredictRequest{
					OwnerID:       strings.TrimSpace(ownerID),
					MachineID:     strings.TrimSpace(args[0]),
					CSVPath:       strings.TrimSpace(args[1]),
					SensorColumns: columns,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				printPrediction(cmd, resp)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&ownerID, "owner", "o", "", "Owner identifier")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Sensor columns to score (overrides stored columns)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the prediction as JSON")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func printPrediction(cmd *cobra.Command, resp *ipc.PredictResponse) {
	rows := [][]string{
		{"Status", displayHealth(resp.Status)},
		{"Health score", strconv.Itoa(resp.HealthScore)},
		{"Risk", fmt.Sprintf("%d%%", resp.RiskPercentage)},
		{"RUL estimate", fmt.Sprintf("%d days", resp.RULEstimate)},
		{"Anomaly score", strconv.FormatFloat(resp.AnomalyScore, 'f', 4, 64)},
		{"Anomalous", yesNo(resp.IsAnomaly)},
		{"Confidence", strconv.FormatFloat(resp.Confidence, 'f', 2, 64)},
		{"Samples", strconv.Itoa(resp.ProcessedSamples)},
		{"Anomalies", fmt.Sprintf("%d (%.1f%%)", resp.AnomalyCount, resp.AnomalyPercentage)},
		{"Predicted at", resp.PredictedAt.Format(time.RFC3339)},
	}
	table := renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft})
	fmt.Fprintln(cmd.OutOrStdout(), table)
}
