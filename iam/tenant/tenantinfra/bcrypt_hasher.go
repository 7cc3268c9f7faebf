package tenantinfra

import (
	"github.com/velora-labs/conversa/iam/tenant"
	"golang.org/x/crypto/bcrypt"
)

// BcryptCredentialHasher implementación del hasher de claves de API usando bcrypt
type BcryptCredentialHasher struct {
	cost int
}

// NewBcryptCredentialHasher crea una nueva instancia del hasher
func NewBcryptCredentialHasher() tenant.CredentialHasher {
	return &BcryptCredentialHasher{
		cost: bcrypt.DefaultCost,
	}
}

// Hash hashea una clave de API
func (s *BcryptCredentialHasher) Hash(secret string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

// Verify verifica una clave de API contra su hash
func (s *BcryptCredentialHasher) Verify(hash, secret string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	return err == nil
}
