package auth

import (
	"github.com/JMURv/session-core/internal/auth/jwt"
	"golang.org/x/crypto/bcrypt"
)

const hashCost = 10

type Core interface {
	jwt.Port
	Hash(pswd string) (string, error)
	ComparePasswords(hashed, pswd []byte) error
}

type Auth struct {
	*jwt.Core
	cost int
}

func New(j *jwt.Core) *Auth {
	return &Auth{Core: j, cost: hashCost}
}

// NewWithCost is New with a custom bcrypt cost.
func NewWithCost(j *jwt.Core, cost int) *Auth {
	return &Auth{Core: j, cost: cost}
}

func (a *Auth) Hash(pswd string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(pswd), a.cost)
	return string(bytes), err
}

func (a *Auth) ComparePasswords(hashed, pswd []byte) error {
	if err := bcrypt.CompareHashAndPassword(hashed, pswd); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
