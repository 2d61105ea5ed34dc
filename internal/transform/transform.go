// Package transform obfuscates numeric values into opaque tokens and applies
// arithmetic to tokens without writing plaintext anywhere.
//
// The bundled Tagged scheme is a placeholder and provides no confidentiality.
// A real homomorphic scheme can replace it by implementing Scheme.
package transform

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/rcliao/biobank/internal/model"
)

// Operation names an arithmetic transform applied to a token.
type Operation string

const (
	OpIncrease10 Operation = "increase10%"
	OpDecrease10 Operation = "decrease10%"
	OpDouble     Operation = "double"
)

// Scheme encodes, decodes and operates on tokens.
type Scheme interface {
	Encode(value float64) string
	Decode(token string) (float64, error)
	Apply(token string, op Operation) (string, error)
}

// TokenPrefix tags tokens produced by Tagged so they are never confused with
// a raw numeric string.
const TokenPrefix = "FHE-"

// Tagged is the default Scheme: TokenPrefix followed by the base64 of the
// decimal representation of the value.
type Tagged struct{}

// Default is the scheme used when none is configured.
var Default Scheme = Tagged{}

func (Tagged) Encode(value float64) string {
	return TokenPrefix + base64.StdEncoding.EncodeToString([]byte(formatFloat(value)))
}

// Decode reverses Encode. Untagged input is parsed as a plain number so
// legacy values stay readable.
func (Tagged) Decode(token string) (float64, error) {
	raw := token
	if strings.HasPrefix(token, TokenPrefix) {
		b, err := base64.StdEncoding.DecodeString(token[len(TokenPrefix):])
		if err != nil {
			return 0, fmt.Errorf("%w: token payload: %v", model.ErrFormat, err)
		}
		raw = string(b)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: not a number: %q", model.ErrFormat, raw)
	}
	return v, nil
}

func (t Tagged) Apply(token string, op Operation) (string, error) {
	v, err := t.Decode(token)
	if err != nil {
		return "", err
	}
	return t.Encode(Compute(v, op)), nil
}

// Compute applies op to a plain value. Unknown operations return v unchanged.
func Compute(v float64, op Operation) float64 {
	switch op {
	case OpIncrease10:
		return v * 1.1
	case OpDecrease10:
		return v * 0.9
	case OpDouble:
		return v * 2
	default:
		return v
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
