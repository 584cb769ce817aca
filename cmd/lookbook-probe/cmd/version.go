package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lookbook-shop/client-go/api"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Version: %s\n", api.Version)
	},
}
