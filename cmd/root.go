package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the slotbook application
var rootCmd = &cobra.Command{
	Use:   "slotbook",
	Short: "Books meetings into free blocks of a Google Calendar",
	Long: `slotbook turns blocks marked as available in the owner's Google Calendar
into bookable meeting slots for a portfolio site.

It can run as:
  - An HTTP API and optional MCP endpoint (serve)
  - A standalone notification worker when the asynq queue is used (worker)
  - A set of CLI helpers to authorize the calendar and inspect availability`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return globals.loadEnv(cmd)
	},
}

// version will be set by main
var version = "dev"

// globals holds the settings shared by every subcommand.
var globals = defaultGlobalConfig()

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "slotbook version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	globals.bindFlags(rootCmd)

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newWorkerCmd())
	rootCmd.AddCommand(newAuthorizeCmd())
	rootCmd.AddCommand(newSlotsCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
