package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// ServiceTokenPrefix marks tokens issued to machine callers such as the
// retraining scheduler.
const ServiceTokenPrefix = "pfa_"

// GenerateServiceToken creates a new raw token (prefix + 64 hex chars from 32
// random bytes) and its SHA-256 hash. Only the hash is configured on the
// server.
func GenerateServiceToken() (raw, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate random bytes: %w", err)
	}
	raw = ServiceTokenPrefix + hex.EncodeToString(b)
	return raw, HashServiceToken(raw), nil
}

// HashServiceToken computes the SHA-256 hex digest of a raw token.
func HashServiceToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// ServiceTokens verifies service tokens against a fixed set of hashes.
type ServiceTokens struct {
	hashes [][]byte
}

var _ TokenVerifier = (*ServiceTokens)(nil)

// NewServiceTokens accepts tokens whose hashes are listed.
func NewServiceTokens(hashes []string) *ServiceTokens {
	s := &ServiceTokens{}
	for _, h := range hashes {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			s.hashes = append(s.hashes, []byte(h))
		}
	}
	return s
}

// IsServiceToken reports whether raw looks like a service token.
func IsServiceToken(raw string) bool {
	return strings.HasPrefix(raw, ServiceTokenPrefix)
}

func (s *ServiceTokens) VerifyToken(_ context.Context, raw string) (*UserClaims, error) {
	if !IsServiceToken(raw) {
		return nil, fmt.Errorf("not a service token")
	}
	got := []byte(HashServiceToken(raw))
	for _, h := range s.hashes {
		if subtle.ConstantTimeCompare(got, h) == 1 {
			return &UserClaims{UID: "service:" + string(h[:8]), Service: true}, nil
		}
	}
	return nil, fmt.Errorf("unknown service token")
}
