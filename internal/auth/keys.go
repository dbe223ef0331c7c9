// Package auth issues and checks user API keys. Only the SHA-256 hash of a
// key is ever stored.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

type KeyKind string

const (
	KeyKindLive KeyKind = "live"
	KeyKindTest KeyKind = "test"

	keyPrefix      = "qrm_"
	keySuffixLen   = 32
	base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// GenerateAPIKey returns the raw key (shown once) and its hash.
func GenerateAPIKey(kind KeyKind) (string, string, error) {
	switch kind {
	case KeyKindLive, KeyKindTest:
	default:
		return "", "", fmt.Errorf("invalid key kind: %s", kind)
	}
	suffix, err := randomBase62(keySuffixLen)
	if err != nil {
		return "", "", err
	}
	raw := keyPrefix + string(kind) + "_" + suffix
	return raw, HashKey(raw), nil
}

func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func VerifyKey(raw, hash string) bool {
	computed := HashKey(raw)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(strings.ToLower(hash))) == 1
}

func DetectKeyKind(raw string) KeyKind {
	rest, ok := strings.CutPrefix(raw, keyPrefix)
	if !ok {
		return ""
	}
	kind, _, ok := strings.Cut(rest, "_")
	if !ok {
		return ""
	}
	switch KeyKind(kind) {
	case KeyKindLive, KeyKindTest:
		return KeyKind(kind)
	}
	return ""
}

func randomBase62(n int) (string, error) {
	buf := make([]byte, n)
	limit := big.NewInt(int64(len(base62Alphabet)))
	for i := range buf {
		v, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("random: %w", err)
		}
		buf[i] = base62Alphabet[v.Int64()]
	}
	return string(buf), nil
}
