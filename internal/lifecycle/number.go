package lifecycle

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const (
	numberPrefix = "PSP"
	numberMin    = 100000
	numberMax    = 999999
)

// NumberGenerator produces candidate application numbers. Uniqueness is
// enforced by the store; callers retry on collision.
type NumberGenerator func(now time.Time) string

// RandomNumber returns PSP<year><six random digits>.
func RandomNumber(now time.Time) string {
	n, err := rand.Int(rand.Reader, big.NewInt(numberMax-numberMin+1))
	if err != nil {
		// crypto/rand only fails when the OS source is unavailable.
		n = big.NewInt(now.UnixNano() % (numberMax - numberMin + 1))
	}
	return fmt.Sprintf("%s%d%d", numberPrefix, now.Year(), numberMin+n.Int64())
}
