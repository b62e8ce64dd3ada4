package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// GetUserByCognitoSub returns nil, nil when no user has the subject.
func (s *Store) GetUserByCognitoSub(ctx context.Context, sub string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("cognito_sub = ?", sub).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageErr(err, "failed to query user")
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user *User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return storageErr(err, "failed to insert user")
	}
	return nil
}

// GetOrCreateUser looks the user up by CognitoSub and inserts it when
// missing. A concurrent insert of the same subject is resolved by reading the
// winner's row. When the email already belongs to another subject the user
// is created without one.
func (s *Store) GetOrCreateUser(ctx context.Context, candidate User) (*User, error) {
	user, err := s.GetUserByCognitoSub(ctx, candidate.CognitoSub)
	if err != nil || user != nil {
		return user, err
	}

	err = s.db.WithContext(ctx).Create(&candidate).Error
	if err == nil {
		return &candidate, nil
	}
	if !isUniqueViolation(err) {
		return nil, storageErr(err, "failed to insert user")
	}

	user, err = s.GetUserByCognitoSub(ctx, candidate.CognitoSub)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}
	if candidate.Email == nil {
		return nil, storageErr(errors.New("unique constraint violation"), "failed to insert user")
	}

	s.log.Warn().Str("cognito_sub", candidate.CognitoSub).Msg("email already registered to another subject, creating user without it")
	candidate.Email = nil
	return s.GetOrCreateUser(ctx, candidate)
}
