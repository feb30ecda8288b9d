package game

import (
	"crypto/rand"
	"math/big"
	"sync"
)

// DefaultCodeAlphabet matches the codes students type from a projector screen.
const DefaultCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultCodeLength gives 36^6 possible codes.
const DefaultCodeLength = 6

// CodeGenerator issues fixed-length session codes that never repeat for the
// lifetime of the process. Issued codes stay retired even after their session
// ends, so a stale client can never land on a reused code. Alphabet and
// length are injectable so tests can exercise collision retry on a tiny space.
type CodeGenerator struct {
	alphabet string
	length   int

	mu     sync.Mutex
	issued map[string]struct{}
}

// NewCodeGenerator creates a generator over the given alphabet and length.
func NewCodeGenerator(alphabet string, length int) *CodeGenerator {
	return &CodeGenerator{
		alphabet: alphabet,
		length:   length,
		issued:   make(map[string]struct{}),
	}
}

// capacity is the size of the code space, saturating at max int.
func (g *CodeGenerator) capacity() int {
	size := 1
	for i := 0; i < g.length; i++ {
		next := size * len(g.alphabet)
		if next/len(g.alphabet) != size {
			return int(^uint(0) >> 1)
		}
		size = next
	}
	return size
}

// Next returns a fresh code, retrying on collision. When every code in the
// space has already been issued it fails with ErrCodeSpaceExhausted instead
// of spinning.
func (g *CodeGenerator) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.issued) >= g.capacity() {
		return "", ErrCodeSpaceExhausted
	}

	for {
		code, err := g.random()
		if err != nil {
			return "", err
		}
		if _, taken := g.issued[code]; taken {
			continue
		}
		g.issued[code] = struct{}{}
		return code, nil
	}
}

func (g *CodeGenerator) random() (string, error) {
	buf := make([]byte, g.length)
	max := big.NewInt(int64(len(g.alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = g.alphabet[n.Int64()]
	}
	return string(buf), nil
}
