package security

import (
	"errors"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"golang.org/x/crypto/bcrypt"
)

const ScannerKeyHeader = "X-Scanner-Key"

var ErrScannerKeyNotConfigured = errors.New("scanner key not configured")

// ScannerAuth admits door scanners presenting a key that matches the bcrypt
// hash from SCANNER_KEY_HASH. Superusers are always allowed.
type ScannerAuth struct {
	hash []byte
}

func NewScannerAuth(hash string) *ScannerAuth {
	return &ScannerAuth{hash: []byte(hash)}
}

func (s *ScannerAuth) Verify(key string) error {
	if len(s.hash) == 0 {
		return ErrScannerKeyNotConfigured
	}
	if key == "" {
		return bcrypt.ErrMismatchedHashAndPassword
	}
	return bcrypt.CompareHashAndPassword(s.hash, []byte(key))
}

func (s *ScannerAuth) Middleware() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if e.HasSuperuserAuth() {
			return e.Next()
		}
		if err := s.Verify(e.Request.Header.Get(ScannerKeyHeader)); err != nil {
			return apis.NewUnauthorizedError("Invalid scanner key", nil)
		}
		return e.Next()
	}
}

// HashScannerKey produces a value suitable for SCANNER_KEY_HASH.
func HashScannerKey(key string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
