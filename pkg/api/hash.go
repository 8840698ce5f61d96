package api

import (
	"crypto/sha256"
	"encoding/hex"
)

// PasswordHash returns the hex SHA-256 of salt+password+pepper, the form the
// backend expects at login. It returns "" when salt or pepper is empty.
func PasswordHash(password, salt, pepper string) string {
	if salt == "" || pepper == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(salt + password + pepper))
	return hex.EncodeToString(sum[:])
}
