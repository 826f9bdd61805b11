package voucher

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"github.com/greenpass/greenpass/internal/shared"
)

const (
	// CodeLength is the number of characters in a voucher code.
	CodeLength = 8
	// CodeAlphabet omits 0/O and 1/I so codes can be read aloud and typed.
	CodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	// DefaultIssueAttempts bounds collision retries.
	DefaultIssueAttempts = 5
)

// CodeGenerator draws uniformly random voucher codes.
type CodeGenerator struct {
	rand     io.Reader
	attempts int
}

// NewCodeGenerator returns a generator backed by crypto/rand.
func NewCodeGenerator() *CodeGenerator {
	return &CodeGenerator{rand: rand.Reader, attempts: DefaultIssueAttempts}
}

// NewCodeGeneratorFrom uses r as the entropy source. attempts <= 0 uses the default.
func NewCodeGeneratorFrom(r io.Reader, attempts int) *CodeGenerator {
	if attempts <= 0 {
		attempts = DefaultIssueAttempts
	}
	return &CodeGenerator{rand: r, attempts: attempts}
}

// Generate returns a fresh code.
func (g *CodeGenerator) Generate() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", fmt.Errorf("voucher: read entropy: %w", err)
	}
	// 256 is a multiple of the 32 symbol alphabet, so masking keeps the draw uniform.
	out := make([]byte, CodeLength)
	for i, b := range buf {
		out[i] = CodeAlphabet[int(b)&(len(CodeAlphabet)-1)]
	}
	return string(out), nil
}

// Issue draws codes and hands each to insert until one is accepted. insert
// reports false when the code already exists.
func (g *CodeGenerator) Issue(ctx context.Context, insert func(code string) (bool, error)) (string, error) {
	for i := 0; i < g.attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := g.Generate()
		if err != nil {
			return "", err
		}
		ok, err := insert(code)
		if err != nil {
			return "", err
		}
		if ok {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", shared.ErrCodeSpaceExhausted, g.attempts)
}

// NormalizeCode trims and upper-cases user input.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidFormat reports whether code has the expected length and alphabet.
func ValidFormat(code string) bool {
	code = NormalizeCode(code)
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(CodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
