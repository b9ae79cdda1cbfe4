// Package code generates short numeric verification codes.
package code

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
)

const (
	Min = 1000
	Max = 90999
)

// Placeholder is issued instead of a random code outside production.
const Placeholder = "12345"

var span = big.NewInt(Max - Min + 1)

// New returns a uniformly random code in [Min, Max] as a decimal string.
func New() (string, error) {
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+Min, 10), nil
}
