package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wabridge/bridge-server-go/internal/database"
	"github.com/wabridge/bridge-server-go/internal/repository"
	"github.com/wabridge/bridge-server-go/internal/service"
)

// createUserCmd provisions an account without going through the public
// signup endpoint, e.g. when signup is rate limited or closed.
var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create a user account and print its id",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		name, _ := cmd.Flags().GetString("name")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := database.Connect(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()

		// Token revocation is not exercised here, so no Redis client is needed.
		auth := service.NewAuthService(
			db,
			repository.NewUserRepository(db.DB),
			repository.NewProfileRepository(db.DB),
			nil,
			cfg.JWTSecret,
			cfg.AccessTokenTTL(),
		)

		result, err := auth.Signup(cmd.Context(), service.SignupParams{
			Email:    email,
			Password: password,
			Name:     name,
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), result.User.ID)
		return nil
	},
}

func init() {
	createUserCmd.Flags().String("email", "", "Email address")
	createUserCmd.Flags().String("password", "", "Password")
	createUserCmd.Flags().String("name", "", "Display name")
	createUserCmd.MarkFlagRequired("email")
	createUserCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(createUserCmd)
}
