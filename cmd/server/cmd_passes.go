package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lukasbauer/apriori/internal/followup"
)

func newScheduleCommand() *cobra.Command {
	var callType string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run one scheduling pass",
		Long: `Run one scheduling pass for the given call type. The pass holds the same
lock as the periodic job, so it is skipped when another replica is scheduling.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := followup.ParseCallType(callType)
			if err != nil {
				return err
			}
			a, logger, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ran, err := a.Job().RunScheduleFor(cmd.Context(), ct)
			if err != nil {
				return err
			}
			if !ran {
				logger.Warn().Msg("Schedule: another pass holds the lock, nothing done")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&callType, "type", string(followup.CallTypeRetentionCheck), "Call type: exit_interview or retention_check")
	return cmd
}

func newExecuteCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Start every due follow-up call",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, logger, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if dryRun {
				due, err := a.Executor().DueCalls(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd, due)
			}

			ran, err := a.Job().RunExecute(cmd.Context())
			if err != nil {
				return err
			}
			if !ran {
				logger.Warn().Msg("Execute: another pass holds the lock, nothing done")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List due calls without starting them")
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
