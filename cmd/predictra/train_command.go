package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"predictra/internal/ipc"
	"predictra/internal/machine"
)

const trainingPollInterval = 500 * time.Millisecond

func newTrainCommand(ctx *commandContext) *cobra.Command {
	var ownerID string
	var columns []string
	var wait bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "train <machine-id> <csv-path>",
		Short: "Train a machine's anomaly model from a sensor CSV export",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			machineID := strings.TrimSpace(args[0])
			csvPath := strings.TrimSpace(args[1])
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Train(ipc.TrainRequest{
					OwnerID:       strings.TrimSpace(ownerID),
					MachineID:     machineID,
					CSVPath:       csvPath,
					SensorColumns: columns,
				})
				if err != nil {
					return err
				}
				if asJSON && !wait {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Training started (run %s)\n", resp.RunID)
				if !wait {
					fmt.Fprintln(cmd.OutOrStdout(), "Poll with `predictra training-status` or re-run with --wait")
					return nil
				}
				return watchTraining(cmd, client, strings.TrimSpace(ownerID), machineID, ctx.statusWindow())
			})
		},
	}

	cmd.Flags().StringVarP(&ownerID, "owner", "o", "", "Owner identifier")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Sensor columns to train on (overrides stored columns)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the run to finish, printing progress")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the run acknowledgement as JSON")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newTrainingStatusCommand(ctx *commandContext) *cobra.Command {
	var ownerID string
	var watch bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "training-status <machine-id>",
		Short: "Show the training run state for a machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			machineID := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				if watch {
					return watchTraining(cmd, client, strings.TrimSpace(ownerID), machineID, ctx.statusWindow())
				}
				state, err := client.TrainingStatus(ipc.TrainingStatusRequest{
					OwnerID:   strings.TrimSpace(ownerID),
					MachineID: machineID,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, state)
				}
				printTrainingState(cmd, state)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&ownerID, "owner", "o", "", "Owner identifier")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Poll until the run reaches a terminal state")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit run state as JSON")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

// watchTraining polls run state until it is terminal or the status session
// window elapses.
func watchTraining(cmd *cobra.Command, client *ipc.Client, ownerID, machineID string, window time.Duration) error {
	out := cmd.OutOrStdout()
	deadline := time.Now().Add(window)
	lastProgress := -1
	lastMessage := ""

	for {
		state, err := client.TrainingStatus(ipc.TrainingStatusRequest{
			OwnerID:   ownerID,
			MachineID: machineID,
		})
		if err != nil {
			return err
		}

		if state.Progress != lastProgress || state.Message != lastMessage {
			lastProgress = state.Progress
			lastMessage = state.Message
			fmt.Fprintf(out, "  %3d%%  %s\n", state.Progress, state.Message)
		}

		status, _ := machine.ParseRunStatus(state.Status)
		if status.IsTerminal() {
			if status == machine.RunFailed {
				return fmt.Errorf("training failed: %s", state.Message)
			}
			fmt.Fprintln(out, "Training completed")
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("training still %s after %s; poll again with `predictra training-status`",
				displayRunState(state.Status, state.Progress), window)
		}
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-time.After(trainingPollInterval):
		}
	}
}

func printTrainingState(cmd *cobra.Command, state *ipc.TrainingStatusResponse) {
	out := cmd.OutOrStdout()
	rows := [][]string{
		{"Status", displayRunState(state.Status, state.Progress)},
		{"Progress", fmt.Sprintf("%d%%", state.Progress)},
	}
	if state.Message != "" {
		rows = append(rows, []string{"Message", state.Message})
	}
	if !state.UpdatedAt.IsZero() {
		rows = append(rows, []string{"Updated", state.UpdatedAt.Format(time.RFC3339)})
	}
	table := renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft})
	fmt.Fprintln(out, table)
}

// statusWindow bounds how long interactive polling sessions run.
func (c *commandContext) statusWindow() time.Duration {
	if cfg := c.configValue(); cfg != nil && cfg.Timeouts.StatusSession > 0 {
		return time.Duration(cfg.Timeouts.StatusSession) * time.Second
	}
	return 180 * time.Second
}
