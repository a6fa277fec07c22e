package repository

import (
	"context"
	"errors"
	"fmt"

	"focusgarden/backend/internal/docstore"
	"focusgarden/backend/internal/model"
)

const (
	CollectionUsers      = "users"
	CollectionUserEmails = "user_emails"
)

type emailIndex struct {
	UserID string `json:"userId"`
}

// UserRepository stores users as documents. Email uniqueness is enforced by
// an index document keyed by the normalized email.
type UserRepository struct {
	store docstore.Store
}

func NewUserRepository(store docstore.Store) *UserRepository {
	return &UserRepository{store: store}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if _, err := r.store.Create(ctx, CollectionUserEmails, user.Email, emailIndex{UserID: user.ID}); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return ErrEmailTaken
		}
		return fmt.Errorf("reserve user email: %w", err)
	}

	if _, err := r.store.Create(ctx, CollectionUsers, user.ID, user); err != nil {
		_ = r.store.Delete(ctx, CollectionUserEmails, user.Email)
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	doc, err := r.store.Get(ctx, CollectionUserEmails, email)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	var index emailIndex
	if err := doc.Decode(&index); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, index.UserID)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	doc, err := r.store.Get(ctx, CollectionUsers, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}

	var user model.User
	if err := doc.Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}
