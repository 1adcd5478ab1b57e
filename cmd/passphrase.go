package cmd

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"
)

const (
	MinPassphraseLen = 8
	PassphraseEnvVar = "DGT_KEYSTORE_PASSPHRASE"
	PassphraseExt    = ".pass"

	// 32 random bytes gives a generated passphrase 256 bits of entropy
	// before encoding.
	generatedPassphraseBytes = 32
)

// PassphraseOptions drives ResolvePassphrase. Sources are tried in strict
// precedence order: Explicit, File, the environment variable, auto-generate
// (when enabled), then an interactive prompt.
type PassphraseOptions struct {
	Explicit string
	File     string
	// AutoGenerate creates a random passphrase and saves it to
	// <PassphraseDir>/<Label>.pass with owner-only permissions.
	AutoGenerate  bool
	Label         string
	PassphraseDir string
	// Confirm prompts twice on interactive entry (key creation). Unlock
	// paths leave it false.
	Confirm bool
}

func checkPassphraseStrength(passphrase string) error {
	if len(passphrase) < MinPassphraseLen {
		return fmt.Errorf("%w (minimum %d characters)", ErrWeakPassphrase, MinPassphraseLen)
	}
	return nil
}

// ResolvePassphrase returns the passphrase for an operation, short-circuiting
// at the first available source. Every source is held to the same minimum
// length; the value itself is never logged, only the source that supplied it.
func ResolvePassphrase(opts PassphraseOptions) (string, error) {
	if opts.Explicit != "" {
		if err := checkPassphraseStrength(opts.Explicit); err != nil {
			return "", err
		}
		logger.Debug().Str("source", "explicit").Msg("passphrase resolved")
		return opts.Explicit, nil
	}

	if opts.File != "" {
		passphrase, err := readPassphraseFile(opts.File)
		if err != nil {
			return "", err
		}
		if err := checkPassphraseStrength(passphrase); err != nil {
			return "", err
		}
		logger.Debug().Str("source", "file").Msg("passphrase resolved")
		return passphrase, nil
	}

	if env := os.Getenv(PassphraseEnvVar); env != "" {
		if err := checkPassphraseStrength(env); err != nil {
			return "", err
		}
		logger.Debug().Str("source", "env").Msg("passphrase resolved")
		return env, nil
	}

	if opts.AutoGenerate {
		passphrase, err := generateAndSavePassphrase(opts.PassphraseDir, opts.Label)
		if err != nil {
			return "", err
		}
		logger.Info().Str("source", "generated").Str("label", opts.Label).Msg("passphrase generated and saved")
		return passphrase, nil
	}

	passphrase, err := promptPassphrase(opts.Confirm)
	if err != nil {
		return "", err
	}
	if err := checkPassphraseStrength(passphrase); err != nil {
		return "", err
	}
	logger.Debug().Str("source", "prompt").Msg("passphrase resolved")
	return passphrase, nil
}

// readPassphraseFile takes the first line of the file, without the newline.
func readPassphraseFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open passphrase file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read passphrase file: %w", err)
		}
		return "", fmt.Errorf("passphrase file is empty")
	}
	return strings.TrimRight(scanner.Text(), "\r"), nil
}

func passphraseFilePath(dir, label string) string {
	return filepath.Join(dir, label+PassphraseExt)
}

func generateAndSavePassphrase(dir, label string) (string, error) {
	if label == "" {
		return "", fmt.Errorf("auto-generated passphrase requires a label")
	}
	raw := make([]byte, generatedPassphraseBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	passphrase := base64.RawURLEncoding.EncodeToString(raw)
	zeroize(raw)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create passphrase directory: %w", err)
	}
	path := passphraseFilePath(dir, label)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("passphrase file for %q already exists", label)
	}
	if err := os.WriteFile(path, []byte(passphrase+"\n"), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase file: %w", err)
	}
	return passphrase, nil
}

// promptPassphrase reads a hidden passphrase from the terminal, twice when
// confirm is set. Entry and confirmation must match exactly.
func promptPassphrase(confirm bool) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal; pass a passphrase file or set %s", PassphraseEnvVar)
	}

	fmt.Fprint(os.Stderr, "Enter passphrase: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}

	if confirm {
		fmt.Fprint(os.Stderr, "Confirm passphrase: ")
		second, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			zeroize(first)
			return "", fmt.Errorf("failed to read confirmation: %w", err)
		}
		if string(first) != string(second) {
			zeroize(first)
			zeroize(second)
			return "", fmt.Errorf("passphrases do not match")
		}
		zeroize(second)
	}

	passphrase := string(first)
	zeroize(first)
	return passphrase, nil
}
