package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

const serviceName = "ema-battle"

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "battle",
		Short: "Stage rap battles between two AI participants",
		Long: `battle runs a turn-based rap battle between two named participants on a
topic. Verses are written by a language model, spoken by a speech
synthesizer and scored by an AI judge. Win/loss records persist between
battles.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newStandingsCommand())

	return cmd
}
