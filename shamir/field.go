package shamir

import (
	"sync"

	"github.com/ruteri/key-custody-backend/interfaces"
)

const (
	// fieldPolynomial is the Rijndael irreducible polynomial
	// x^8 + x^4 + x^3 + x + 1 defining GF(2^8).
	fieldPolynomial = 0x11b

	// fieldSize is the number of elements in the field.
	fieldSize = 256

	// fieldOrder is the order of the multiplicative group.
	fieldOrder = fieldSize - 1
)

var (
	expTable   [fieldSize]byte
	logTable   [fieldSize]byte
	tablesOnce sync.Once
)

// initTables fills the exponentiation and discrete-log tables for
// generator 3. The tables are a pure function of the field definition,
// computed once at first use and immutable afterwards, so they are safe
// to share across concurrent callers.
func initTables() {
	tablesOnce.Do(func() {
		var x uint16 = 1
		for i := 0; i < fieldOrder; i++ {
			expTable[i] = byte(x)
			logTable[x] = byte(i)

			// Multiply by the generator: x*3 = (x << 1) ^ x, reduced
			// modulo the field polynomial on overflow.
			x = (x << 1) ^ x
			if x >= fieldSize {
				x ^= fieldPolynomial
			}
		}
	})
}

// gfMul multiplies two elements of GF(2^8) via table lookup.
func gfMul(a, b byte) byte {
	initTables()
	if a == 0 || b == 0 {
		return 0
	}
	return expTable[(int(logTable[a])+int(logTable[b]))%fieldOrder]
}

// gfDiv divides a by b in GF(2^8). A zero divisor is an invariant
// violation and reports ErrDivisionByZero; it is unreachable as long as
// share x-coordinates are distinct.
func gfDiv(a, b byte) (byte, error) {
	initTables()
	if b == 0 {
		return 0, interfaces.ErrDivisionByZero
	}
	if a == 0 {
		return 0, nil
	}
	return expTable[(int(logTable[a])-int(logTable[b])+fieldOrder)%fieldOrder], nil
}
