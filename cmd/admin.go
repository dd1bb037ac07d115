package main

import (
	"fmt"

	"github.com/eaglelearn/account-api/internal/command"
	"github.com/eaglelearn/account-api/internal/config"
	"github.com/eaglelearn/account-api/internal/repository"
	"github.com/eaglelearn/account-api/shared/cqrs"
	"github.com/eaglelearn/account-api/shared/middleware"
	"github.com/eaglelearn/account-api/shared/models"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		db, err := repository.Open(cmd.Context(), cfg.Driver, cfg.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := repository.Migrate(cmd.Context(), db); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
		return nil
	},
}

var createUserOpts struct {
	cqrs.CreateAccountCommand
	token bool
}

// createUserCmd seeds accounts for operators and local development.
var createUserCmd = &cobra.Command{
	Use:   "createuser",
	Short: "Create an account and optionally print a bearer token for it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		db, err := repository.Open(cmd.Context(), cfg.Driver, cfg.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := repository.Migrate(cmd.Context(), db); err != nil {
			return err
		}

		svc := command.NewAccountCommandService(command.Dependencies{Store: repository.NewStore(db)})
		account, err := svc.CreateAccount(cmd.Context(), createUserOpts.CreateAccountCommand)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", account.Username, account.ID)

		if createUserOpts.token {
			token, err := middleware.SignToken([]byte(cfg.JWTSecret), models.Caller{
				Username:    account.Username,
				Email:       account.Email,
				IsStaff:     account.IsStaff,
				IsSuperuser: account.IsSuperuser,
			}, cfg.TokenLifetime)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
		}
		return nil
	},
}

func init() {
	flags := createUserCmd.Flags()
	flags.StringVar(&createUserOpts.Username, "username", "", "username (required)")
	flags.StringVar(&createUserOpts.Email, "email", "", "email address (required)")
	flags.StringVar(&createUserOpts.Password, "password", "", "password, unusable when empty")
	flags.StringVar(&createUserOpts.Name, "name", "", "full name")
	flags.BoolVar(&createUserOpts.IsStaff, "staff", false, "grant staff access")
	flags.BoolVar(&createUserOpts.IsSuperuser, "superuser", false, "grant superuser access")
	flags.BoolVar(&createUserOpts.token, "token", false, "print a bearer token for the new account")
	_ = createUserCmd.MarkFlagRequired("username")
	_ = createUserCmd.MarkFlagRequired("email")
}
