package store

import (
	"context"

	"github.com/sujalbistaa/entrenous/internal/models"
)

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	return s.retry(ctx, "create_user", func() error {
		return s.q(ctx).Create(u).Error
	})
}

func (s *Store) UserByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := s.retry(ctx, "user_by_id", func() error {
		return s.q(ctx).First(&u, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) UserByEmailLookup(ctx context.Context, lookup string) (*models.User, error) {
	var u models.User
	err := s.retry(ctx, "user_by_email_lookup", func() error {
		return s.q(ctx).Where("email_lookup = ?", lookup).First(&u).Error
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id uint, hash string) error {
	return s.retry(ctx, "update_password_hash", func() error {
		res := s.q(ctx).Model(&models.User{}).Where("id = ?", id).Update("password_hash", hash)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
