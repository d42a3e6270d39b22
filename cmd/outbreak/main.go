package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "outbreak",
	Short: "Hidden-role party game relay and simulator",
	Long: `Outbreak runs the shared document relay that game clients synchronize
through, and can play simulated matches with bots against it.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
