// Package cli provides the intakectl command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jansunwai/assistant/internal/config"
	"github.com/jansunwai/assistant/internal/service/auth"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	token   string
	logFile string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "intakectl",
	Short: "Operator tools for the Jansunwai chat gateway",
	Long: `intakectl talks to the municipal complaint backend the same way the chat
widget does. Use it to chat from a terminal or to try the speech endpoints.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		// a missing .env is fine
		_ = godotenv.Load()

		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("JANSUNWAI_TOKEN"), "citizen session token sent to the backend")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(transcribeCmd)
	rootCmd.AddCommand(speakCmd)
}

func credentials() auth.Credentials {
	return auth.Credentials{Token: token}
}
