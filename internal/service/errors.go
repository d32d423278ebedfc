package service

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrSelfLike    = errors.New("cannot like your own content")
	ErrInvalidKind = errors.New("invalid entity kind")
)

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
