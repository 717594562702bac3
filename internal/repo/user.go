package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/Skotchmaster/workhub/internal/models"
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *GormRepo) CreateUserIfNotExists(ctx context.Context, u *models.User) error {
	u.Email = normalizeEmail(u.Email)
	tx := r.DB.WithContext(ctx).Where("email = ?", u.Email).FirstOrCreate(u)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrUserAlreadyExist
	}
	return nil
}

func (r *GormRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *GormRepo) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *GormRepo) MarkVerified(ctx context.Context, id string) error {
	res := r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("is_verified", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *GormRepo) UpdateName(ctx context.Context, id, name string) (*models.User, error) {
	res := r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return r.GetUserByID(ctx, id)
}

// ResolveGoogleUser maps an external Google identity to a local user:
// first by google id, then by linking an existing account with the same
// email, otherwise by creating a password-less user. Linking and creating
// both require the provider to have verified the email.
func (r *GormRepo) ResolveGoogleUser(ctx context.Context, googleID, email, name string, emailVerified bool) (*models.User, error) {
	var out models.User
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("google_id = ?", googleID).First(&out).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if !emailVerified {
			return ErrUnverifiedEmail
		}

		err = tx.Where("email = ?", normalizeEmail(email)).First(&out).Error
		switch {
		case err == nil:
			updates := map[string]any{"google_id": googleID, "is_verified": true}
			if err := tx.Model(&out).Updates(updates).Error; err != nil {
				return err
			}
			return tx.Where("id = ?", out.ID).First(&out).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			gid := googleID
			out = models.User{
				Email:      normalizeEmail(email),
				Name:       name,
				IsVerified: true,
				GoogleID:   &gid,
			}
			return tx.Create(&out).Error
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
