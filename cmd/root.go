package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var BuildNumber = "unknown"

var (
	walletDir   string
	rpcURL      string
	chainIDFlag string
)

var rootCmd = &cobra.Command{
	Use:   "dgtwallet",
	Short: "dgtwallet - post-quantum wallet and transaction signing tool",
	Long: `dgtwallet manages ML-DSA-87 keys in an encrypted keystore and builds,
signs, and submits transfer transactions for DGT networks.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&walletDir, "wallet-dir", "",
		"Directory for keystore and config files (default: $HOME/.dgtwallet)")
	rootCmd.PersistentFlags().StringVar(&rpcURL, "rpc-url", "",
		"Node RPC base URL (overrides config and DGT_RPC_URL)")
	rootCmd.PersistentFlags().StringVar(&chainIDFlag, "chain-id", "",
		"Chain ID (overrides config and the node status endpoint)")
}
