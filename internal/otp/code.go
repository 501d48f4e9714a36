package otp

import (
	"crypto/rand"
	"math/big"
	"strconv"

	"github.com/pkg/errors"
)

const codeLength = 6

var (
	codeFloor = big.NewInt(100000)
	codeSpan  = big.NewInt(900000)
)

// generateCode returns a uniformly random six digit code without a leading zero.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", errors.Wrap(err, "generate otp code")
	}
	return strconv.FormatInt(n.Add(n, codeFloor).Int64(), 10), nil
}

// wellFormed reports whether s could be a code at all.
func wellFormed(s string) bool {
	if len(s) != codeLength {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
