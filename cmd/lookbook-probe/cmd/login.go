package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lookbook-shop/client-go/shop"
)

var loginIdentifier = ""

func init() {
	loginCmd.Flags().StringVarP(&loginIdentifier, "identifier", "i", "", "email or username")
	loginCmd.MarkFlagRequired("identifier")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate and persist the session to the data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := shop.LoadConfigFile(viper.GetString("config_file"))
		if err != nil {
			return fmt.Errorf("load config file %q: %w", viper.GetString("config_file"), err)
		}

		password := os.Getenv("LOOKBOOK_PASSWORD")
		if password == "" {
			return fmt.Errorf("LOOKBOOK_PASSWORD is not set")
		}

		client, err := shop.New(*config)
		if err != nil {
			return fmt.Errorf("create client: %w", err)
		}
		defer client.Close()

		user, err := client.Login(cmd.Context(), loginIdentifier, password)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}

		slog.Info("session stored", "user", user.Username, "data_dir", config.DataDir)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and wipe local state",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := shop.LoadConfigFile(viper.GetString("config_file"))
		if err != nil {
			return fmt.Errorf("load config file %q: %w", viper.GetString("config_file"), err)
		}

		client, err := shop.New(*config)
		if err != nil {
			return fmt.Errorf("create client: %w", err)
		}
		defer client.Close()

		if err := client.Logout(cmd.Context()); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		slog.Info("session cleared")
		return nil
	},
}
