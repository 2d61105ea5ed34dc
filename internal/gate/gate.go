// Package gate releases decoded values only after the caller signs a session
// challenge.
//
// The signature proves control of the session identity. It is not tied to the
// token being decoded, and the decoded value is never stored.
package gate

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"

	"github.com/rcliao/biobank/internal/model"
	"github.com/rcliao/biobank/internal/transform"
)

// PublicKeyBytes is the size of the random public key material.
const PublicKeyBytes = 1000

// DefaultDurationDays is the validity advertised in a fresh session.
const DefaultDurationDays = 30

// SessionParams are the values embedded in a challenge.
type SessionParams struct {
	PublicKey       string `json:"publicKey"`
	ContractAddress string `json:"contractAddress"`
	ChainID         int64  `json:"chainId"`
	StartTimestamp  int64  `json:"startTimestamp"`
	DurationDays    int    `json:"durationDays"`
}

// NewSession creates session parameters with fresh public key material
// read from r (crypto/rand when nil).
func NewSession(r io.Reader, contractAddress string, chainID int64, durationDays int, now time.Time) (SessionParams, error) {
	if r == nil {
		r = rand.Reader
	}
	if durationDays <= 0 {
		durationDays = DefaultDurationDays
	}
	buf := make([]byte, PublicKeyBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return SessionParams{}, fmt.Errorf("public key material: %w", err)
	}
	return SessionParams{
		PublicKey:       hexutil.Encode(buf),
		ContractAddress: contractAddress,
		ChainID:         chainID,
		StartTimestamp:  now.Unix(),
		DurationDays:    durationDays,
	}, nil
}

// BuildChallenge formats p one field per line in a fixed order. Equal params
// always give byte-identical output.
func BuildChallenge(p SessionParams) string {
	var b strings.Builder
	b.WriteString("publickey:" + p.PublicKey + "\n")
	b.WriteString("contractAddresses:" + p.ContractAddress + "\n")
	b.WriteString("contractsChainId:" + strconv.FormatInt(p.ChainID, 10) + "\n")
	b.WriteString("startTimestamp:" + strconv.FormatInt(p.StartTimestamp, 10) + "\n")
	b.WriteString("durationDays:" + strconv.Itoa(p.DurationDays))
	return b.String()
}

// Signer produces a signature over a message, or fails if the holder
// declines.
type Signer interface {
	SignMessage(ctx context.Context, message string) ([]byte, error)
}

// Verifier checks that sig over message was made by identity.
type Verifier interface {
	VerifySignature(message string, sig []byte, identity string) error
}

// Gate decodes tokens for an authenticated identity.
type Gate struct {
	Identity string
	Session  SessionParams
	Signer   Signer

	// Verifier is optional. When nil any signature the Signer returns
	// is accepted.
	Verifier Verifier
	Scheme   transform.Scheme
	Log      *logrus.Entry
}

// Decrypt asks for a fresh signature over the session challenge and, once
// given, decodes token. Each call signs again.
func (g *Gate) Decrypt(ctx context.Context, token string) (float64, error) {
	if strings.TrimSpace(g.Identity) == "" {
		return 0, model.ErrNotAuthenticated
	}
	if g.Signer == nil {
		return 0, fmt.Errorf("%w: no signer", model.ErrDecryptionFailed)
	}
	scheme := g.Scheme
	if scheme == nil {
		scheme = transform.Default
	}

	challenge := BuildChallenge(g.Session)
	sig, err := g.Signer.SignMessage(ctx, challenge)
	if err != nil {
		return 0, fmt.Errorf("%w: signature: %w", model.ErrDecryptionFailed, err)
	}
	if len(sig) == 0 {
		return 0, fmt.Errorf("%w: empty signature", model.ErrDecryptionFailed)
	}
	if g.Verifier != nil {
		if err := g.Verifier.VerifySignature(challenge, sig, g.Identity); err != nil {
			return 0, fmt.Errorf("%w: %v", model.ErrDecryptionFailed, err)
		}
	}

	v, err := scheme.Decode(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", model.ErrDecryptionFailed, err)
	}
	if g.Log != nil {
		g.Log.WithField("identity", g.Identity).Debug("value decrypted")
	}
	return v, nil
}
