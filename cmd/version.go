package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the dgtwallet version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dgtwallet build %s\n", BuildNumber)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
