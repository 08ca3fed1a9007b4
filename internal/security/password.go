package security

import "golang.org/x/crypto/bcrypt"

// HashPassword salts and hashes a plaintext password with bcrypt, so the
// same password produces a different hash every call.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether plain is the password hash was
// generated from, returning a non-nil error on any mismatch.
func CheckPassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}
