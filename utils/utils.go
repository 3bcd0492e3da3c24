package utils

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// RandSlug returns a URL-safe base62 string of exactly n characters.
// Used for gallery slugs (n=10).
func RandSlug(n int) string {
	var b strings.Builder
	max := big.NewInt(int64(len(base62Alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		b.WriteByte(base62Alphabet[idx.Int64()])
	}
	return b.String()
}

func Rand16BytesToBase62() string {
	buf := make([]byte, 16)
	_, err := rand.Read(buf)
	if err != nil {
		panic(err)
	}
	var i big.Int
	return i.SetBytes(buf).Text(62)
}

// NormalizeEmail lowercases and trims an address before it is stored
// or compared. Invite rows key on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
