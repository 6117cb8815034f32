package rng

import (
	"encoding/binary"
	"sync"

	"golang.org/x/crypto/chacha20"
)

// Seeded is a deterministic source: two instances built from the same seed
// produce the same sequence. It is safe for concurrent use.
type Seeded struct {
	mu     sync.Mutex
	cipher *chacha20.Cipher
	buf    [8]byte
}

// NewSeeded builds a ChaCha20 keystream source from seed.
func NewSeeded(seed uint64) *Seeded {
	var key [chacha20.KeySize]byte
	binary.BigEndian.PutUint64(key[:8], seed)
	// Spread the seed over the key so nearby seeds diverge immediately.
	binary.BigEndian.PutUint64(key[8:16], seed*0x9E3779B97F4A7C15)
	binary.BigEndian.PutUint64(key[16:24], ^seed)
	binary.BigEndian.PutUint64(key[24:], seed^0xD1B54A32D192ED03)

	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		// Key and nonce sizes are fixed above.
		panic(err)
	}
	return &Seeded{cipher: c}
}

func (s *Seeded) next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero [8]byte
	s.cipher.XORKeyStream(s.buf[:], zero[:])
	return binary.BigEndian.Uint64(s.buf[:])
}

// Float64 implements Source.
func (s *Seeded) Float64() float64 {
	return float64(s.next()>>11) / float64(1<<53)
}

// IntN implements Source.
func (s *Seeded) IntN(n int) int {
	if n <= 0 {
		panic("rng: IntN called with non-positive n")
	}
	max := uint64(n)
	threshold := ^uint64(0) - (^uint64(0) % max)
	for {
		v := s.next()
		if v < threshold {
			return int(v % max)
		}
	}
}

// Scripted replays a fixed list of floats, cycling when exhausted.
// IntN maps the next float onto [0, n).
type Scripted struct {
	mu     sync.Mutex
	values []float64
	pos    int
}

// NewScripted returns a source that yields values in order.
func NewScripted(values ...float64) *Scripted {
	if len(values) == 0 {
		values = []float64{0}
	}
	return &Scripted{values: values}
}

// Float64 implements Source.
func (s *Scripted) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.values[s.pos%len(s.values)]
	s.pos++
	return v
}

// IntN implements Source.
func (s *Scripted) IntN(n int) int {
	if n <= 0 {
		panic("rng: IntN called with non-positive n")
	}
	v := int(s.Float64() * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

// Calls reports how many values have been consumed.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}
