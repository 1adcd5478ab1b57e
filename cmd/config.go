package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const configFileName = "config.json"

// WalletConfig is the persisted wallet configuration, stored as JSON in the
// wallet directory. Flags beat environment, environment beats file.
type WalletConfig struct {
	RPCURL          string `json:"rpc_url"`
	ChainID         string `json:"chain_id"`
	HTTPTimeoutSecs int    `json:"http_timeout_secs"`
}

// envOverrides is populated from DGT_* environment variables.
type envOverrides struct {
	RPCURL          string `envconfig:"RPC_URL"`
	ChainID         string `envconfig:"CHAIN_ID"`
	WalletDir       string `envconfig:"WALLET_DIR"`
	HTTPTimeoutSecs int    `envconfig:"HTTP_TIMEOUT_SECS"`
	SignerBin       string `envconfig:"SIGNER_BIN"`
}

func loadEnvOverrides() envOverrides {
	var env envOverrides
	if err := envconfig.Process("DGT", &env); err != nil {
		logger.Warn().Err(err).Msg("ignoring malformed DGT_* environment variables")
	}
	return env
}

// getWalletDir resolves the wallet directory: --wallet-dir flag, then
// DGT_WALLET_DIR, then $HOME/.dgtwallet.
func getWalletDir() string {
	if walletDir != "" {
		return walletDir
	}
	if env := loadEnvOverrides(); env.WalletDir != "" {
		return env.WalletDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultWalletDir
	}
	return filepath.Join(home, DefaultWalletDir)
}

func configPath(dir string) string {
	return filepath.Join(dir, configFileName)
}

// loadConfig reads the config file, returning zero-value defaults when it
// does not exist yet.
func loadConfig(dir string) (WalletConfig, error) {
	var cfg WalletConfig
	data, err := os.ReadFile(configPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func saveConfig(dir string, cfg WalletConfig) error {
	if err := ensureKeystoreDir(dir); err != nil {
		return fmt.Errorf("failed to create wallet directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath(dir), data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// resolveRPCURL applies the override chain for the node URL.
func resolveRPCURL() string {
	if rpcURL != "" {
		return rpcURL
	}
	if env := loadEnvOverrides(); env.RPCURL != "" {
		return env.RPCURL
	}
	if cfg, err := loadConfig(getWalletDir()); err == nil && cfg.RPCURL != "" {
		return cfg.RPCURL
	}
	return "http://127.0.0.1:26657"
}

// resolveChainIDOffline applies the override chain without touching the
// network. Returns a devnet default when nothing is configured.
func resolveChainIDOffline() string {
	if chainIDFlag != "" {
		return chainIDFlag
	}
	if env := loadEnvOverrides(); env.ChainID != "" {
		return env.ChainID
	}
	if cfg, err := loadConfig(getWalletDir()); err == nil && cfg.ChainID != "" {
		return cfg.ChainID
	}
	return "dgt-devnet-1"
}

// resolveChainID prefers a locally configured chain id and otherwise asks the
// node's status endpoint.
func resolveChainID(ctx context.Context, client *NodeClient) (string, error) {
	if chainIDFlag != "" {
		return chainIDFlag, nil
	}
	if env := loadEnvOverrides(); env.ChainID != "" {
		return env.ChainID, nil
	}
	if cfg, err := loadConfig(getWalletDir()); err == nil && cfg.ChainID != "" {
		return cfg.ChainID, nil
	}
	return client.ChainID(ctx)
}

func httpTimeout() time.Duration {
	if env := loadEnvOverrides(); env.HTTPTimeoutSecs > 0 {
		return time.Duration(env.HTTPTimeoutSecs) * time.Second
	}
	if cfg, err := loadConfig(getWalletDir()); err == nil && cfg.HTTPTimeoutSecs > 0 {
		return time.Duration(cfg.HTTPTimeoutSecs) * time.Second
	}
	return defaultHTTPTimeout
}

// signatureProvider picks the configured provider: an external signer binary
// when DGT_SIGNER_BIN is set, the in-process implementation otherwise.
func signatureProvider() SignatureProvider {
	return defaultProvider(loadEnvOverrides().SignerBin)
}

func newNodeClient() *NodeClient {
	return NewNodeClient(resolveRPCURL(), httpTimeout())
}
