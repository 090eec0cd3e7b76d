package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"predictra/internal/ipc"
)

func newMachineCommand(ctx *commandContext) *cobra.Command {
	machineCmd := &cobra.Command{
		Use:   "machine",
		Short: "Manage monitored machines",
	}

	machineCmd.AddCommand(newMachineAddCommand(ctx))
	machineCmd.AddCommand(newMachineListCommand(ctx))
	machineCmd.AddCommand(newMachineShowCommand(ctx))
	machineCmd.AddCommand(newMachineRemoveCommand(ctx))

	return machineCmd
}

func newMachineAddCommand(ctx *commandContext) *cobra.Command {
	var ownerID string
	var machineType string
	var columns []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a new machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := normalizeDisplayName(args[0])
			if name == "" {
				return errors.New("machine name is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.MachineCreate(ipc.MachineCreateRequest{
					OwnerID:       strings.TrimSpace(ownerID),
					Name:          name,
					Type:          strings.ToLower(strings.TrimSpace(machineType)),
					SensorColumns: columns,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Machine)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered machine %s (%s)\n", resp.Machine.Name, resp.Machine.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&ownerID, "owner", "o", "", "Owner identifier")
	cmd.Flags().StringVarP(&machineType, "type", "t", "", "Machine type (pump, motor, ...)")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Sensor columns expected in training data")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the created machine as JSON")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newMachineListCommand(ctx *commandContext) *cobra.Command {
	var ownerID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered machines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.MachineList(strings.TrimSpace(ownerID))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Machines)
				}
				if len(resp.Machines) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No machines registered")
					return nil
				}
				rows := make([][]string, 0, len(resp.Machines))
				for _, m := range resp.Machines {
					rows = append(rows, []string{
						m.ID,
						m.Name,
						m.Type,
						yesNo(m.Trained),
						displayRunState(m.RunStatus, m.RunProgress),
						displayHealth(m.HealthStatus),
					})
				}
				table := renderTable(
					[]string{"ID", "Name", "Type", "Trained", "Run", "Health"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&ownerID, "owner", "o", "", "Filter by owner identifier")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit machines as JSON")
	return cmd
}

func newMachineShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <machine-id>",
		Short: "Show machine details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.MachineDescribe(strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Machine)
				}
				printMachineDetail(cmd, resp.Machine)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the machine as JSON")
	return cmd
}

func newMachineRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <machine-id>",
		Short: "Remove a machine and its stored model state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.MachineRemove(strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if !resp.Removed {
					fmt.Fprintln(cmd.OutOrStdout(), "Machine not found")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Machine removed")
				return nil
			})
		},
	}
}

func printMachineDetail(cmd *cobra.Command, m ipc.Machine) {
	out := cmd.OutOrStdout()
	rows := [][]string{
		{"ID", m.ID},
		{"Owner", m.OwnerID},
		{"Name", m.Name},
		{"Type", m.Type},
		{"Sensor columns", strings.Join(m.SensorColumns, ", ")},
		{"Trained", yesNo(m.Trained)},
		{"Run", displayRunState(m.RunStatus, m.RunProgress)},
	}
	if m.RunMessage != "" {
		rows = append(rows, []string{"Run message", m.RunMessage})
	}
	if m.Trained {
		rows = append(rows, []string{"Threshold", strconv.FormatFloat(m.Threshold, 'f', -1, 64)})
		rows = append(rows, []string{"Model type", m.ModelType})
		rows = append(rows, []string{"Trained columns", strings.Join(m.TrainedColumns, ", ")})
	}
	if m.HealthStatus != "" {
		rows = append(rows, []string{"Health", displayHealth(m.HealthStatus)})
		rows = append(rows, []string{"Health score", strconv.Itoa(m.HealthScore)})
		rows = append(rows, []string{"RUL estimate", fmt.Sprintf("%d days", m.RULEstimate)})
		rows = append(rows, []string{"Risk", fmt.Sprintf("%d%%", m.RiskPercentage)})
	}
	rows = append(rows, []string{"Created", m.CreatedAt.Format(time.RFC3339)})
	rows = append(rows, []string{"Updated", m.UpdatedAt.Format(time.RFC3339)})

	table := renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft})
	fmt.Fprintln(out, table)
}

// normalizeDisplayName collapses whitespace and title-cases the machine name
// so "cooling   pump a" and "Cooling Pump A" register identically.
func normalizeDisplayName(raw string) string {
	name := strings.Join(strings.Fields(strings.TrimSpace(raw)), " ")
	if name == "" {
		return ""
	}
	return cases.Title(language.Und).String(name)
}

func displayRunState(status string, progress int) string {
	switch status {
	case "", "none":
		return "-"
	case "in_progress":
		return fmt.Sprintf("in progress (%d%%)", progress)
	default:
		return strings.ReplaceAll(status, "_", " ")
	}
}

func displayHealth(status string) string {
	if status == "" {
		return "-"
	}
	return strings.ReplaceAll(status, "_", " ")
}
