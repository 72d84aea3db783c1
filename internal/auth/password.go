package auth

import (
	"crypto/subtle"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Operator is the single dashboard account configured from the environment.
type Operator struct {
	Username     string
	PasswordHash string
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// Authenticate checks username and password. A bcrypt comparison runs even
// when the username is wrong or no hash is configured.
func (o Operator) Authenticate(username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(o.Username)) == 1
	hash := []byte(o.PasswordHash)
	if len(hash) == 0 {
		dummyOnce.Do(func() {
			dummyHash, _ = bcrypt.GenerateFromPassword([]byte("unset operator password"), bcrypt.DefaultCost)
		})
		hash = dummyHash
	}
	pwErr := bcrypt.CompareHashAndPassword(hash, []byte(password))
	if !userOK || pwErr != nil || o.PasswordHash == "" {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword returns the bcrypt hash to put in OPERATOR_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
