package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/libtrack/core/cmd/api/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "libtrack",
		Short: "LibTrack API Server",
		Long:  `LibTrack is the backend for a small library-fee tracking application: student records, archive, backups and a chat assistant.`,
	}

	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewMigrateCommand())
	rootCmd.AddCommand(commands.NewBackupCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		log.Printf("Command execution failed: %v", err)
		os.Exit(1)
	}
}
