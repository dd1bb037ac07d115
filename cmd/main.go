package main

import (
	"log/slog"
	"os"

	"github.com/eaglelearn/account-api/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var v = config.New()

var rootCmd = &cobra.Command{
	Use:   "account-api",
	Short: "Learner account settings API",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine; the environment may already be set.
		_ = godotenv.Load()
		return nil
	},
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.Int("port", 8080, "HTTP port")
	flags.String("driver", "postgres", "database driver (postgres, sqlite)")
	flags.String("dsn", "", "database source name")
	flags.String("redis-addr", "", "Redis address")
	flags.String("instance-id", "", "event consumer identity, random when empty")

	for _, name := range []string{"port", "driver", "dsn", "redis-addr", "instance-id"} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(serveCmd, migrateCmd, createUserCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
