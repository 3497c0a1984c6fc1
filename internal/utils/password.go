package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword returns the bcrypt hash of plain+pepper using the given cost.
func HashPassword(plain, pepper string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain+pepper), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares a bcrypt hash with plain+pepper.
func VerifyPassword(hash, plain, pepper string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain+pepper)) == nil
}
