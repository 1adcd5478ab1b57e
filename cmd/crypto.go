package cmd

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os/exec"
	"strings"

	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
)

const (
	AlgorithmMLDSA87 = "ML-DSA-87"

	SecretKeySize = mldsa87.PrivateKeySize // 4896 bytes
	PublicKeySize = mldsa87.PublicKeySize  // 2592 bytes
	SignatureSize = mldsa87.SignatureSize  // 4627 bytes
)

// SignatureProvider is the capability set the wallet needs from a
// post-quantum signature scheme. The native implementation links circl
// in-process; the exec implementation shells out to a separately compiled
// signer binary. Callers depend only on this interface.
type SignatureProvider interface {
	GenerateKeyPair() (secretKey, publicKey []byte, err error)
	Sign(secretKey, message []byte) ([]byte, error)
	Verify(publicKey, message, signature []byte) bool
}

// NativeProvider implements SignatureProvider with ML-DSA-87 from circl.
type NativeProvider struct{}

func NewNativeProvider() *NativeProvider {
	return &NativeProvider{}
}

func (p *NativeProvider) GenerateKeyPair() ([]byte, []byte, error) {
	pub, priv, err := mldsa87.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: keygen: %v", ErrCryptoUnavailable, err)
	}
	return priv.Bytes(), pub.Bytes(), nil
}

func (p *NativeProvider) Sign(secretKey, message []byte) ([]byte, error) {
	if len(secretKey) != SecretKeySize {
		return nil, fmt.Errorf("%w: secret key must be %d bytes, got %d",
			ErrCryptoUnavailable, SecretKeySize, len(secretKey))
	}
	var sk mldsa87.PrivateKey
	if err := sk.UnmarshalBinary(secretKey); err != nil {
		return nil, fmt.Errorf("%w: bad secret key encoding", ErrCryptoUnavailable)
	}
	signature := make([]byte, SignatureSize)
	if err := mldsa87.SignTo(&sk, message, nil, false, signature); err != nil {
		return nil, fmt.Errorf("%w: sign: %v", ErrCryptoUnavailable, err)
	}
	return signature, nil
}

func (p *NativeProvider) Verify(publicKey, message, signature []byte) bool {
	if len(publicKey) != PublicKeySize || len(signature) != SignatureSize {
		return false
	}
	var pk mldsa87.PublicKey
	if err := pk.UnmarshalBinary(publicKey); err != nil {
		return false
	}
	return mldsa87.Verify(&pk, message, nil, signature)
}

// ExecProvider delegates to an external signer binary. Protocol: hex-encoded
// arguments on stdin (one per line), hex output on stdout.
//
//	signer keygen          -> line 1: secret key hex, line 2: public key hex
//	signer sign            <- secret key hex, message hex; -> signature hex
//	signer verify          <- public key hex, message hex, signature hex; exit 0 valid, 1 invalid
type ExecProvider struct {
	Path string
}

func NewExecProvider(path string) *ExecProvider {
	return &ExecProvider{Path: path}
}

func (p *ExecProvider) run(subcommand string, stdinLines ...string) (string, error) {
	cmd := exec.Command(p.Path, subcommand)
	cmd.Stdin = strings.NewReader(strings.Join(stdinLines, "\n") + "\n")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s %s: %v", ErrCryptoUnavailable, p.Path, subcommand, err)
	}
	return strings.TrimSpace(out.String()), nil
}

func (p *ExecProvider) GenerateKeyPair() ([]byte, []byte, error) {
	out, err := p.run("keygen")
	if err != nil {
		return nil, nil, err
	}
	lines := strings.SplitN(out, "\n", 2)
	if len(lines) != 2 {
		return nil, nil, fmt.Errorf("%w: keygen output malformed", ErrCryptoUnavailable)
	}
	sk, err := hex.DecodeString(strings.TrimSpace(lines[0]))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: keygen secret key not hex", ErrCryptoUnavailable)
	}
	pk, err := hex.DecodeString(strings.TrimSpace(lines[1]))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: keygen public key not hex", ErrCryptoUnavailable)
	}
	return sk, pk, nil
}

func (p *ExecProvider) Sign(secretKey, message []byte) ([]byte, error) {
	out, err := p.run("sign", hex.EncodeToString(secretKey), hex.EncodeToString(message))
	if err != nil {
		return nil, err
	}
	sig, err := hex.DecodeString(out)
	if err != nil {
		return nil, fmt.Errorf("%w: signature output not hex", ErrCryptoUnavailable)
	}
	return sig, nil
}

func (p *ExecProvider) Verify(publicKey, message, signature []byte) bool {
	cmd := exec.Command(p.Path, "verify")
	cmd.Stdin = strings.NewReader(
		hex.EncodeToString(publicKey) + "\n" +
			hex.EncodeToString(message) + "\n" +
			hex.EncodeToString(signature) + "\n")
	return cmd.Run() == nil
}

// defaultProvider picks the exec provider when DGT_SIGNER_BIN is set,
// otherwise the in-process implementation.
func defaultProvider(signerBin string) SignatureProvider {
	if signerBin != "" {
		return NewExecProvider(signerBin)
	}
	return NewNativeProvider()
}

// zeroize overwrites sensitive bytes in place. Called on every exit path
// that held a decrypted secret key or passphrase buffer.
func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
