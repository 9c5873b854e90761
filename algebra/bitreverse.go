package algebra

import (
	"math/bits"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/fft"
)

// BitReverse reverses the lowest nbits bits of idx.
func BitReverse(idx uint64, nbits int) uint64 {
	if nbits == 0 {
		return 0
	}
	return bits.Reverse64(idx) >> (64 - uint(nbits))
}

// BitReverseSlice permutes v in place so that v[i] and v[BitReverse(i)] are
// swapped. The length of v must be a power of two.
func BitReverseSlice(v []fr.Element) {
	fft.BitReverse(v)
}

// BitReversedCopy writes into dst the bit-reversal permutation of src.
func BitReversedCopy(dst, src []fr.Element) {
	n := len(src)
	logN := bits.TrailingZeros64(uint64(n))
	for i := 0; i < n; i++ {
		dst[BitReverse(uint64(i), logN)] = src[i]
	}
}
