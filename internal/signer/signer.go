// Package signer holds secp256k1 identities and signs messages the way
// Ethereum wallets do for personal_sign (EIP-191).
package signer

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rcliao/biobank/internal/ledger"
	"github.com/rcliao/biobank/internal/model"
)

// Key is a local identity. Its address is the identity string used as
// record owner.
type Key struct {
	priv *ecdsa.PrivateKey
}

// GenerateKey creates a fresh identity.
func GenerateKey() (*Key, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Key{priv: priv}, nil
}

// FromHex parses a hex private key, with or without 0x.
func FromHex(s string) (*Key, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse key: %w", err)
	}
	return &Key{priv: priv}, nil
}

// LoadFile reads a hex private key from path.
func LoadFile(path string) (*Key, error) {
	priv, err := crypto.LoadECDSA(path)
	if err != nil {
		return nil, fmt.Errorf("load key %s: %w", path, err)
	}
	return &Key{priv: priv}, nil
}

// SaveFile writes the private key as hex with 0600 permissions.
func (k *Key) SaveFile(path string) error {
	return crypto.SaveECDSA(path, k.priv)
}

// Address returns the checksummed address of the key.
func (k *Key) Address() string {
	return crypto.PubkeyToAddress(k.priv.PublicKey).Hex()
}

// SignMessage returns a 65-byte [R || S || V] signature over the EIP-191
// hash of message, with V in {27, 28}.
func (k *Key) SignMessage(ctx context.Context, message string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), k.priv)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Recover returns the address that produced sig over message.
func Recover(message string, sig []byte) (string, error) {
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	s := make([]byte, len(sig))
	copy(s, sig)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), s)
	if err != nil {
		return "", fmt.Errorf("recover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// RecoverVerifier accepts a signature when it recovers to the expected
// identity.
type RecoverVerifier struct{}

func (RecoverVerifier) VerifySignature(message string, sig []byte, identity string) error {
	addr, err := Recover(message, sig)
	if err != nil {
		return err
	}
	if !common.IsHexAddress(identity) || !model.SameIdentity(addr, identity) {
		return fmt.Errorf("signature by %s, expected %s", addr, identity)
	}
	return nil
}

// Prompter asks yes/no questions on a terminal. A process should share one
// Prompter so input buffered past one answer is there for the next prompt.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Confirm prints question and reports whether the answer was y or yes.
// End of input counts as no.
func (p *Prompter) Confirm(question string) bool {
	fmt.Fprintf(p.out, "%s [y/N]: ", question)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// Confirming asks before every signature, like a wallet popup. A declined
// prompt fails with model.ErrUserRejected.
type Confirming struct {
	Key    *Key
	Prompt *Prompter
}

func (c *Confirming) SignMessage(ctx context.Context, message string) ([]byte, error) {
	q := fmt.Sprintf("Sign this message as %s?\n\n%s\n\n", c.Key.Address(), abbreviate(message))
	if !c.Prompt.Confirm(q) {
		return nil, model.ErrUserRejected
	}
	return c.Key.SignMessage(ctx, message)
}

// ConfirmingWriter asks before every ledger write, the way a wallet asks
// before sending a transaction.
type ConfirmingWriter struct {
	W      ledger.Writer
	From   string
	Prompt *Prompter
}

func (c *ConfirmingWriter) SetData(ctx context.Context, key string, value []byte) (*ledger.Receipt, error) {
	q := fmt.Sprintf("Send transaction from %s setting %s (%d bytes)?", c.From, key, len(value))
	if !c.Prompt.Confirm(q) {
		return nil, model.ErrUserRejected
	}
	return c.W.SetData(ctx, key, value)
}

// abbreviate shortens long lines (the public key runs to 2000 digits).
func abbreviate(message string) string {
	lines := strings.Split(message, "\n")
	for i, l := range lines {
		if len(l) > 80 {
			lines[i] = l[:60] + "..." + l[len(l)-8:]
		}
	}
	return strings.Join(lines, "\n")
}
