package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// UnusablePasswordPrefix marks a password hash no password can match.
const UnusablePasswordPrefix = "!"

const (
	idCharset             = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	unusablePasswordChars = 40
)

func randomString(length int) string {
	result := make([]byte, length)
	for i := range result {
		num, _ := rand.Int(rand.Reader, big.NewInt(int64(len(idCharset))))
		result[i] = idCharset[num.Int64()]
	}
	return string(result)
}

// GenerateID generates a unique ID with the given prefix
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, randomString(10))
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// UnusablePassword returns a marker that can never authenticate. Each call
// returns a distinct value.
func UnusablePassword() string {
	return UnusablePasswordPrefix + randomString(unusablePasswordChars)
}

func IsUsablePassword(hash string) bool {
	return hash != "" && !strings.HasPrefix(hash, UnusablePasswordPrefix)
}
