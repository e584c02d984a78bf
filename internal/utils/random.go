package utils

import (
	"crypto/rand"
	"encoding/base64"
	"math/big"
)

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomString returns bytes of crypto randomness, base64url encoded.
func RandomString(bytes int) string {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// RandomSuffix returns n lowercase alphanumeric characters.
func RandomSuffix(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(suffixAlphabet)))
	for i := range out {
		k, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		out[i] = suffixAlphabet[k.Int64()]
	}
	return string(out)
}
