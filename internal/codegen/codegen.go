package codegen

import (
	"crypto/aes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// alphabet drops 0, 1, I and O so codes survive being read aloud or retyped
const alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// CodeLength is the number of symbols in a code, excluding separators
const CodeLength = 16

// Generator derives prize codes by encrypting (contest, index) under a
// per-contest AES key. Codes for distinct indexes within a contest are
// distinct ciphertexts; storage enforces global uniqueness.
type Generator struct {
	secret []byte
}

// New creates a generator keyed by secret
func New(secret string) *Generator {
	return &Generator{secret: []byte(secret)}
}

// Generate returns count codes for contestID
func (g *Generator) Generate(contestID int64, count int) ([]string, error) {
	if count < 0 || int64(count) > math.MaxUint32 {
		return nil, fmt.Errorf("invalid code count %d", count)
	}
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := g.Code(contestID, uint32(i))
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// Code derives the code at index for contestID, formatted as XXXX-XXXX-XXXX-XXXX
func (g *Generator) Code(contestID int64, index uint32) (string, error) {
	block, err := aes.NewCipher(g.contestKey(contestID))
	if err != nil {
		return "", fmt.Errorf("failed to create AES cipher: %w", err)
	}

	// 128-bit plaintext: upper 64 bits zero, lower 64 bits = contest<<32 | index
	var plain [16]byte
	binary.BigEndian.PutUint64(plain[8:], uint64(contestID)<<32|uint64(index))

	var cipher [16]byte
	block.Encrypt(cipher[:], plain[:])

	symbols := make([]byte, 0, CodeLength)
	for _, half := range [][]byte{cipher[:8], cipher[8:]} {
		v := binary.BigEndian.Uint64(half)
		for i := 0; i < CodeLength/2; i++ {
			symbols = append(symbols, alphabet[v&31])
			v >>= 5
		}
	}

	var b strings.Builder
	for i, s := range symbols {
		if i > 0 && i%4 == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(s)
	}
	return b.String(), nil
}

// contestKey derives a 16-byte AES key from the secret and the contest id
func (g *Generator) contestKey(contestID int64) []byte {
	h := sha256.New()
	h.Write(g.secret)
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], uint64(contestID))
	h.Write(id[:])
	return h.Sum(nil)[:16]
}
