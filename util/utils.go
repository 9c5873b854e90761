package util

import (
	"crypto/rand"
	"fmt"
	"math/bits"
)

// RandomBytes generates a random byte slice of length n.
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		panic(err)
	}
	return b
}

// Random32 generates a random 32-byte array.
func Random32() [32]byte {
	var bytes [32]byte
	copy(bytes[:], RandomBytes(32))
	return bytes
}

// RandomHex generates a random hex string of length n.
func RandomHex(n int) string {
	return fmt.Sprintf("%x", RandomBytes(n))
}

// TrimHex trims the '0x' prefix from a hex string.
func TrimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}

// Pow2 returns 2^k.
func Pow2(k int) uint64 {
	if k < 0 || k >= 64 {
		panic(fmt.Sprintf("Pow2 exponent out of range: %d", k))
	}
	return uint64(1) << uint(k)
}

// Log2 returns log2(n) for a power-of-two n, or an error otherwise.
func Log2(n uint64) (int, error) {
	if !IsPowerOfTwo(n) {
		return 0, fmt.Errorf("expected a power of two, got %d", n)
	}
	return bits.TrailingZeros64(n), nil
}

// Log2Floor returns the floor of log2(n). Log2Floor(0) is 0.
func Log2Floor(n uint64) int {
	if n == 0 {
		return 0
	}
	return 63 - bits.LeadingZeros64(n)
}

// SafeDiv returns a/b, or an error if b does not divide a exactly.
func SafeDiv(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, fmt.Errorf("division by zero")
	}
	if a%b != 0 {
		return 0, fmt.Errorf("%d is not divisible by %d", a, b)
	}
	return a / b, nil
}
