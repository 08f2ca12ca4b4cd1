package decider

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
)

// RandomSource yields uniform floats in [0, 1)
type RandomSource interface {
	Float64() (float64, error)
}

// CryptoSource draws from crypto/rand so outcomes cannot be predicted by clients
type CryptoSource struct{}

// Float64 returns a uniform value in [0, 1) with 53 bits of precision
func (CryptoSource) Float64() (float64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random bytes: %w", err)
	}
	return float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53), nil
}
