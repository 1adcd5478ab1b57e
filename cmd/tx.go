package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	txFrom           string
	txTo             string
	txAmount         string
	txDenom          string
	txFee            string
	txMemo           string
	txBatchFile      string
	txPassphrase     string
	txPassphraseFile string
)

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Build, sign, submit, and inspect transactions",
}

func txLogDir() string {
	return filepath.Join(getWalletDir(), "txlog")
}

// unlockKey loads the sender's record by label, resolves a passphrase, and
// decrypts the secret key. The caller must zeroize the returned key.
func unlockKey(label string) (*KeystoreRecord, []byte, error) {
	record, err := LoadKeystoreRecord(getWalletDir(), label)
	if err != nil {
		return nil, nil, err
	}
	passphrase, err := ResolvePassphrase(PassphraseOptions{
		Explicit: txPassphrase,
		File:     txPassphraseFile,
		Label:    label,
	})
	if err != nil {
		return nil, nil, err
	}
	secretKey, err := DecryptKeystoreRecord(record, passphrase)
	if err != nil {
		return nil, nil, err
	}
	return record, secretKey, nil
}

// signAndSubmit runs the transfer tail shared by send and batch: fetch nonce
// and chain id, sign, submit, journal. The journal gets written for rejected
// submissions too, so `tx query` reflects what actually happened.
func signAndSubmit(record *KeystoreRecord, secretKey []byte, msgs []Message, fee, memo string) {
	ctx := context.Background()
	client := newNodeClient()

	chainID, err := resolveChainID(ctx, client)
	if err != nil {
		fmt.Printf("Failed to determine chain id: %v\n", err)
		os.Exit(1)
	}
	nonce, err := client.AccountNonce(ctx, record.Address)
	if err != nil {
		fmt.Printf("Failed to fetch account nonce: %v\n", err)
		os.Exit(1)
	}

	tx, err := NewTransaction(chainID, nonce, msgs, fee, memo)
	if err != nil {
		fmt.Printf("Invalid transaction: %v\n", err)
		os.Exit(1)
	}
	publicKey, err := record.PublicKey()
	if err != nil {
		fmt.Printf("Failed to decode public key: %v\n", err)
		os.Exit(1)
	}
	signed, err := SignTransaction(signatureProvider(), tx, secretKey, publicKey)
	if err != nil {
		fmt.Printf("Failed to sign transaction: %v\n", err)
		os.Exit(1)
	}
	zeroize(secretKey)

	journal, err := OpenTxLog(txLogDir())
	if err != nil {
		fmt.Printf("Failed to open transaction journal: %v\n", err)
		os.Exit(1)
	}
	defer journal.Close()

	result, err := client.Submit(ctx, signed)
	status := "submit_failed"
	if err == nil {
		status = result.Status
	}
	entry := TxLogEntry{
		Hash:    signed.Hash,
		Status:  status,
		ChainID: chainID,
		Nonce:   nonce,
		From:    record.Address,
	}
	if jerr := journal.Record(entry); jerr != nil {
		logger.Warn().Err(jerr).Msg("failed to journal submission")
	}

	if err != nil {
		var netErr *NetworkError
		if errors.As(err, &netErr) && netErr.Retryable {
			fmt.Printf("Submission failed (retryable): %v\n", err)
			fmt.Printf("The transaction may or may not have reached the node; query hash %s before retrying.\n", signed.Hash)
		} else {
			fmt.Printf("Submission rejected: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Printf("Transaction %s\n", result.Status)
	fmt.Printf("  Hash:  %s\n", signed.Hash)
	fmt.Printf("  Chain: %s\n", chainID)
	fmt.Printf("  Nonce: %d\n", nonce)
}

var txSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a single transfer",
	Run: func(cmd *cobra.Command, args []string) {
		if !IsValidAddress(txTo) {
			fmt.Printf("Invalid recipient address: %s\n", txTo)
			os.Exit(1)
		}
		record, secretKey, err := unlockKey(txFrom)
		if err != nil {
			fmt.Printf("Failed to unlock key %q: %v\n", txFrom, err)
			os.Exit(1)
		}
		defer zeroize(secretKey)

		msg, err := NewSendMessage(record.Address, txTo, txDenom, txAmount)
		if err != nil {
			fmt.Printf("Invalid transfer: %v\n", err)
			os.Exit(1)
		}
		signAndSubmit(record, secretKey, []Message{msg}, txFee, txMemo)
	},
}

// batchRecipient is one line item in a batch file: a JSON array of these.
type batchRecipient struct {
	To     string `json:"to"`
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

var txBatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Send an atomic multi-transfer from a batch file",
	Long: `Reads a JSON array of {"to", "denom", "amount"} objects and sends them as
one transaction with one signature. All transfers apply atomically or not at
all; recipient order is preserved.`,
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(txBatchFile)
		if err != nil {
			fmt.Printf("Failed to read batch file: %v\n", err)
			os.Exit(1)
		}
		var recipients []batchRecipient
		if err := json.Unmarshal(data, &recipients); err != nil {
			fmt.Printf("Failed to parse batch file: %v\n", err)
			os.Exit(1)
		}
		if len(recipients) == 0 {
			fmt.Println("Batch file contains no recipients")
			os.Exit(1)
		}

		record, secretKey, err := unlockKey(txFrom)
		if err != nil {
			fmt.Printf("Failed to unlock key %q: %v\n", txFrom, err)
			os.Exit(1)
		}
		defer zeroize(secretKey)

		msgs := make([]Message, 0, len(recipients))
		for i, r := range recipients {
			if !IsValidAddress(r.To) {
				fmt.Printf("Recipient %d: invalid address %s\n", i, r.To)
				os.Exit(1)
			}
			msg, err := NewSendMessage(record.Address, r.To, r.Denom, r.Amount)
			if err != nil {
				fmt.Printf("Recipient %d: %v\n", i, err)
				os.Exit(1)
			}
			msgs = append(msgs, msg)
		}
		signAndSubmit(record, secretKey, msgs, txFee, txMemo)
	},
}

var txVerifyCmd = &cobra.Command{
	Use:   "verify <signed-tx.json>",
	Short: "Verify a signed transaction document offline",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Printf("Failed to read signed transaction: %v\n", err)
			os.Exit(1)
		}
		var signed SignedTransaction
		if err := json.Unmarshal(data, &signed); err != nil {
			fmt.Printf("Failed to parse signed transaction: %v\n", err)
			os.Exit(1)
		}
		ok, err := VerifySignedTransaction(signatureProvider(), &signed)
		if err != nil {
			fmt.Printf("Verification error: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Println("INVALID: signature or hash does not match transaction content")
			os.Exit(1)
		}
		fmt.Println("VALID")
		fmt.Printf("  Hash:  %s\n", signed.Hash)
		fmt.Printf("  Chain: %s\n", signed.Tx.ChainID)
		fmt.Printf("  Nonce: %d\n", signed.Tx.Nonce)
	},
}

var txQueryCmd = &cobra.Command{
	Use:   "query <hash>",
	Short: "Look up a submitted transaction in the local journal",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		journal, err := OpenTxLog(txLogDir())
		if err != nil {
			fmt.Printf("Failed to open transaction journal: %v\n", err)
			os.Exit(1)
		}
		defer journal.Close()

		entry, err := journal.Get(args[0])
		if err != nil {
			fmt.Printf("%v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Hash:      %s\n", entry.Hash)
		fmt.Printf("Status:    %s\n", entry.Status)
		fmt.Printf("Chain:     %s\n", entry.ChainID)
		fmt.Printf("Nonce:     %d\n", entry.Nonce)
		fmt.Printf("From:      %s\n", entry.From)
		fmt.Printf("Submitted: %s\n", entry.SubmittedAt.Format("2006-01-02 15:04:05 UTC"))
	},
}

func init() {
	txSendCmd.Flags().StringVar(&txFrom, "from", "", "Sender keystore label (required)")
	txSendCmd.Flags().StringVar(&txTo, "to", "", "Recipient address (required)")
	txSendCmd.Flags().StringVar(&txAmount, "amount", "", "Amount in minor units (required)")
	txSendCmd.Flags().StringVar(&txDenom, "denom", "udgt", "Denomination")
	txSendCmd.Flags().StringVar(&txFee, "fee", "1000", "Fee in minor units")
	txSendCmd.Flags().StringVar(&txMemo, "memo", "", "Optional memo")
	txSendCmd.Flags().StringVar(&txPassphrase, "passphrase", "", "Keystore passphrase (discouraged; visible in shell history)")
	txSendCmd.Flags().StringVar(&txPassphraseFile, "passphrase-file", "", "Read passphrase from the first line of this file")
	txSendCmd.MarkFlagRequired("from")
	txSendCmd.MarkFlagRequired("to")
	txSendCmd.MarkFlagRequired("amount")

	txBatchCmd.Flags().StringVar(&txFrom, "from", "", "Sender keystore label (required)")
	txBatchCmd.Flags().StringVar(&txBatchFile, "file", "", "Batch file path (required)")
	txBatchCmd.Flags().StringVar(&txFee, "fee", "1000", "Fee in minor units")
	txBatchCmd.Flags().StringVar(&txMemo, "memo", "", "Optional memo")
	txBatchCmd.Flags().StringVar(&txPassphrase, "passphrase", "", "Keystore passphrase")
	txBatchCmd.Flags().StringVar(&txPassphraseFile, "passphrase-file", "", "Read passphrase from the first line of this file")
	txBatchCmd.MarkFlagRequired("from")
	txBatchCmd.MarkFlagRequired("file")

	txCmd.AddCommand(txSendCmd)
	txCmd.AddCommand(txBatchCmd)
	txCmd.AddCommand(txVerifyCmd)
	txCmd.AddCommand(txQueryCmd)
	rootCmd.AddCommand(txCmd)
}
