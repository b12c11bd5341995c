package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"petfeeder/config"
	"petfeeder/internal/inventory"
)

func newStateCmd(load func() (*config.Config, string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Fetch the device state from the inventory service and print it as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, serial, err := load()
			if err != nil {
				return err
			}

			st, err := inventory.NewClient(&cfg.Remote).FetchState(cmd.Context(), serial)
			if err != nil {
				return fmt.Errorf("fetch state for %s: %w", serial, err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}
}
