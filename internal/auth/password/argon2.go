// Package password хеширует пароли пользователей argon2id.
package password

import (
	"errors"
	"fmt"

	"github.com/alexedwards/argon2id"

	"github.com/EgorLis/collab-notes/internal/domain"
)

type Hasher struct {
	params *argon2id.Params
}

var _ domain.PasswordHasher = (*Hasher)(nil)

func NewDefault() *Hasher {
	return &Hasher{params: argon2id.DefaultParams}
}

func New(p *argon2id.Params) *Hasher { return &Hasher{params: p} }

// Hash возвращает строку формата $argon2id$v=19$m=..., она же хранится в users.password_digest.
func (h *Hasher) Hash(plain string) (string, error) {
	if h == nil || h.params == nil {
		return "", errors.New("argon2id params not set")
	}
	if !domain.ValidPassword(plain) {
		return "", fmt.Errorf("password too short: %w", domain.ErrBadParams)
	}
	return argon2id.CreateHash(plain, h.params)
}

// Verify сравнивает пароль с сохранённым хешем. Пустой хеш никогда не совпадает.
func (h *Hasher) Verify(plain, encodedHash string) (bool, error) {
	if encodedHash == "" {
		return false, nil
	}
	return argon2id.ComparePasswordAndHash(plain, encodedHash)
}
