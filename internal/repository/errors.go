package repository

import (
	"errors"

	"focusgarden/backend/internal/docstore"
)

var (
	ErrNotFound   = docstore.ErrNotFound
	ErrEmailTaken = errors.New("email already registered")
)
