package locker

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

const maxCodeAttempts = 16

var ten = big.NewInt(10)

// randomDigits returns n digits, each drawn uniformly from 0-9.
func randomDigits(n int) (string, error) {
	b := make([]byte, n)
	for i := range b {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("read random digit: %w", err)
		}
		b[i] = byte('0' + d.Int64())
	}
	return string(b), nil
}

// newCode draws codes until one is not live anywhere in the fleet, so the
// fleet-wide lookup on pickup stays unambiguous.
func (s *Service) newCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.codeGen(s.cfg.Length)
		if err != nil {
			return "", err
		}
		inUse, err := s.store.CodeInUse(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check code uniqueness: %w", err)
		}
		if !inUse {
			return code, nil
		}
		s.logger.Debug("generated code collides, drawing again", "attempt", attempt+1)
	}
	return "", fmt.Errorf("no unused code after %d attempts", maxCodeAttempts)
}
