package main

import (
	"fmt"

	"github.com/koscakluka/ema-battle/core/records/sqlite"
	"github.com/koscakluka/ema-battle/internal/config"
	"github.com/spf13/cobra"
)

func newStandingsCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "standings",
		Short: "Show win/loss records",
		Long: `Show the win/loss records of every participant, best first.

Records are read from the SQLite database at --records, which defaults to
BATTLE_RECORDS_PATH.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				path = cfg.RecordsPath
			}
			if path == "" {
				return fmt.Errorf("no records database, set --records or BATTLE_RECORDS_PATH")
			}

			store, err := sqlite.Open(path)
			if err != nil {
				return fmt.Errorf("open records: %w", err)
			}
			defer store.Close()

			standings, err := store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list records: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStandings(standings))
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "records", "", "Path to the records database")

	return cmd
}
