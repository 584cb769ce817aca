package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lookbook-shop/client-go/shop"
)

func init() {
	rootCmd.AddCommand(catalogCmd)
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Fetch the catalog through the full read path",
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

		ctx := cmd.Context()

		brands, err := client.Brands(ctx)
		if err != nil {
			return fmt.Errorf("fetch brands: %w", err)
		}
		styles, err := client.Styles(ctx)
		if err != nil {
			return fmt.Errorf("fetch styles: %w", err)
		}
		categories, err := client.Categories(ctx)
		if err != nil {
			return fmt.Errorf("fetch categories: %w", err)
		}

		slog.Info("catalog fetched",
			"brands", len(brands),
			"styles", len(styles),
			"categories", len(categories),
		)
		for _, b := range brands {
			fmt.Fprintf(cmd.OutOrStdout(), "brand %d: %s\n", b.ID, b.Name)
		}
		return nil
	},
}
