package security

import "golang.org/x/crypto/bcrypt"

// HashPasswordCost hashes a plain text password with bcrypt at the given cost.
func HashPasswordCost(plain string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)

	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// helper that compares a bcrypt hash with a plaintext password.

func CheckPassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}

// BcryptHasher satisfies the service's password hasher contract.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(plain string) (string, error) {
	return HashPasswordCost(plain, h.cost)
}

func (h *BcryptHasher) Matches(plain, hash string) bool {
	return CheckPassword(hash, plain) == nil
}
