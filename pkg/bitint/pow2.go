/*
Package bitint holds the power-of-two helpers used for FFT frame and
buffer sizing.

	frame := bitint.NextPowerOfTwo(1000) // 1024
	ok := bitint.IsPowerOfTwo(frame)

NextPowerOfTwo works on size-1 so that exact powers of two map to
themselves: for 8, bits.Len(7) is 3 and 1<<3 is 8, where bits.Len(8)
would give 16.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size. Non-positive
// sizes return 1.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
