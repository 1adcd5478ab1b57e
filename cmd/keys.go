package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	keysLabel          string
	keysPassphrase     string
	keysPassphraseFile string
	keysAutoPassphrase bool
	keysNewPassphrase  string
	keysNewPassFile    string
	keysExportOutput   string
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encrypted ML-DSA-87 keys",
}

var keysNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Generate a keypair and save it to an encrypted keystore record",
	Run: func(cmd *cobra.Command, args []string) {
		dir := getWalletDir()
		passphrase, err := ResolvePassphrase(PassphraseOptions{
			Explicit:      keysPassphrase,
			File:          keysPassphraseFile,
			AutoGenerate:  keysAutoPassphrase,
			Label:         keysLabel,
			PassphraseDir: dir,
			Confirm:       true,
		})
		if err != nil {
			fmt.Printf("Failed to resolve passphrase: %v\n", err)
			os.Exit(1)
		}

		provider := signatureProvider()
		secretKey, publicKey, err := provider.GenerateKeyPair()
		if err != nil {
			fmt.Printf("Failed to generate keypair: %v\n", err)
			os.Exit(1)
		}
		defer zeroize(secretKey)

		record, err := CreateKeystoreRecord(keysLabel, secretKey, publicKey, passphrase, AlgorithmMLDSA87)
		if err != nil {
			fmt.Printf("Failed to create keystore record: %v\n", err)
			os.Exit(1)
		}
		path, err := SaveKeystoreRecord(dir, record)
		if err != nil {
			fmt.Printf("Failed to save keystore record: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Created key %q\n", record.Label)
		fmt.Printf("  Algorithm: %s\n", record.Algorithm)
		fmt.Printf("  Address:   %s\n", record.Address)
		fmt.Printf("  Keystore:  %s\n", path)
		if keysAutoPassphrase {
			fmt.Printf("  Passphrase saved to %s (keep this file safe)\n",
				passphraseFilePath(dir, record.Label))
		}
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List keystore records",
	Run: func(cmd *cobra.Command, args []string) {
		records, err := ListKeystoreRecords(getWalletDir())
		if err != nil {
			fmt.Printf("Failed to list keystore records: %v\n", err)
			os.Exit(1)
		}
		if len(records) == 0 {
			fmt.Println("No keys found. Create one with: dgtwallet keys new --label <name>")
			return
		}
		fmt.Printf("%-20s %-12s %s\n", "LABEL", "ALGORITHM", "ADDRESS")
		for _, r := range records {
			fmt.Printf("%-20s %-12s %s\n", r.Label, r.Algorithm, r.Address)
		}
	},
}

var keysShowCmd = &cobra.Command{
	Use:   "show <label>",
	Short: "Show the public fields of a keystore record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		record, err := LoadKeystoreRecord(getWalletDir(), args[0])
		if err != nil {
			fmt.Printf("Failed to load keystore record: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Label:      %s\n", record.Label)
		fmt.Printf("Algorithm:  %s\n", record.Algorithm)
		fmt.Printf("Address:    %s\n", record.Address)
		fmt.Printf("Created:    %s\n", record.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
		fmt.Printf("Public key: %s\n", record.PublicKeyB64)
	},
}

var keysExportCmd = &cobra.Command{
	Use:   "export <label>",
	Short: "Export the public fields of a keystore record as JSON",
	Long: `Writes the record's public fields (label, algorithm, public key, address)
as JSON. The encrypted secret key is never exported.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		record, err := LoadKeystoreRecord(getWalletDir(), args[0])
		if err != nil {
			fmt.Printf("Failed to load keystore record: %v\n", err)
			os.Exit(1)
		}
		export := struct {
			Label        string `json:"label"`
			Algorithm    string `json:"algorithm"`
			PublicKeyB64 string `json:"public_key_b64"`
			Address      string `json:"address"`
		}{record.Label, record.Algorithm, record.PublicKeyB64, record.Address}

		data, err := json.MarshalIndent(export, "", "  ")
		if err != nil {
			fmt.Printf("Failed to marshal export: %v\n", err)
			os.Exit(1)
		}
		if keysExportOutput == "" {
			fmt.Println(string(data))
			return
		}
		if err := os.WriteFile(keysExportOutput, append(data, '\n'), 0644); err != nil {
			fmt.Printf("Failed to write export file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Exported public key data to %s\n", keysExportOutput)
	},
}

var keysChangePasswordCmd = &cobra.Command{
	Use:   "change-password <label>",
	Short: "Re-encrypt a keystore record under a new passphrase",
	Long: `Decrypts the record with the current passphrase and re-encrypts the same
keypair under a new one, with a fresh salt and nonce. The file is replaced
atomically; the keypair and address do not change.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir := getWalletDir()
		label := args[0]
		record, err := LoadKeystoreRecord(dir, label)
		if err != nil {
			fmt.Printf("Failed to load keystore record: %v\n", err)
			os.Exit(1)
		}

		oldPassphrase, err := ResolvePassphrase(PassphraseOptions{
			Explicit: keysPassphrase,
			File:     keysPassphraseFile,
			Label:    label,
		})
		if err != nil {
			fmt.Printf("Failed to resolve current passphrase: %v\n", err)
			os.Exit(1)
		}
		secretKey, err := DecryptKeystoreRecord(record, oldPassphrase)
		if err != nil {
			fmt.Printf("Failed to decrypt keystore record: %v\n", err)
			os.Exit(1)
		}
		defer zeroize(secretKey)

		newPassphrase, err := ResolvePassphrase(PassphraseOptions{
			Explicit: keysNewPassphrase,
			File:     keysNewPassFile,
			Label:    label,
			Confirm:  true,
		})
		if err != nil {
			fmt.Printf("Failed to resolve new passphrase: %v\n", err)
			os.Exit(1)
		}

		publicKey, err := record.PublicKey()
		if err != nil {
			fmt.Printf("Failed to decode public key: %v\n", err)
			os.Exit(1)
		}
		fresh, err := CreateKeystoreRecord(label, secretKey, publicKey, newPassphrase, record.Algorithm)
		if err != nil {
			fmt.Printf("Failed to re-encrypt keystore record: %v\n", err)
			os.Exit(1)
		}
		fresh.CreatedAt = record.CreatedAt
		if err := ReplaceKeystoreRecord(dir, fresh); err != nil {
			fmt.Printf("Failed to replace keystore record: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Passphrase changed for %q (address %s)\n", label, fresh.Address)
	},
}

func init() {
	keysNewCmd.Flags().StringVar(&keysLabel, "label", "", "Label for the new key (required)")
	keysNewCmd.Flags().StringVar(&keysPassphrase, "passphrase", "", "Passphrase (discouraged; visible in shell history)")
	keysNewCmd.Flags().StringVar(&keysPassphraseFile, "passphrase-file", "", "Read passphrase from the first line of this file")
	keysNewCmd.Flags().BoolVar(&keysAutoPassphrase, "auto-passphrase", false, "Generate a random passphrase and save it next to the keystore")
	keysNewCmd.MarkFlagRequired("label")

	keysExportCmd.Flags().StringVar(&keysExportOutput, "output", "", "Write to this file instead of stdout")

	keysChangePasswordCmd.Flags().StringVar(&keysPassphrase, "passphrase", "", "Current passphrase")
	keysChangePasswordCmd.Flags().StringVar(&keysPassphraseFile, "passphrase-file", "", "Read current passphrase from this file")
	keysChangePasswordCmd.Flags().StringVar(&keysNewPassphrase, "new-passphrase", "", "New passphrase")
	keysChangePasswordCmd.Flags().StringVar(&keysNewPassFile, "new-passphrase-file", "", "Read new passphrase from this file")

	keysCmd.AddCommand(keysNewCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysShowCmd)
	keysCmd.AddCommand(keysExportCmd)
	keysCmd.AddCommand(keysChangePasswordCmd)
	rootCmd.AddCommand(keysCmd)
}
