package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskmaster/tasksync/cmd/tasksync/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tasksync",
		Short: "Smart task manager synced through automation webhooks",
		Long: `tasksync keeps a local task list and reconciles it with a spreadsheet
exposed through three workflow-automation webhooks (fetch, delete, sync).`,
		SilenceUsage: true,
	}

	flags := commands.RegisterGlobalFlags(rootCmd)

	// Add commands
	rootCmd.AddCommand(commands.NewServeCommand(flags))
	rootCmd.AddCommand(commands.NewListCommand(flags))
	rootCmd.AddCommand(commands.NewAddCommand(flags))
	rootCmd.AddCommand(commands.NewDeleteCommand(flags))
	rootCmd.AddCommand(commands.NewToggleCommand(flags))
	rootCmd.AddCommand(commands.NewFetchCommand(flags))
	rootCmd.AddCommand(commands.NewSyncCommand(flags))
	rootCmd.AddCommand(commands.NewMigrateCommand(flags))
	rootCmd.AddCommand(commands.NewHashKeyCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	// Execute root command
	if err := rootCmd.Execute(); err != nil {
		log.Printf("Command execution failed: %v", err)
		os.Exit(1)
	}
}
