package repo

import (
	"context"
	"time"

	"github.com/Skotchmaster/workhub/internal/hash"
	"github.com/Skotchmaster/workhub/internal/models"
)

func (r *GormRepo) AppendRefresh(ctx context.Context, userID, token, jti string, expiresAt time.Time) error {
	row := models.RefreshToken{
		UserID:    userID,
		TokenHash: hash.Sha256Hex(token),
		JTI:       jti,
		ExpiresAt: expiresAt.UTC(),
	}
	return r.DB.WithContext(ctx).Create(&row).Error
}

// RemoveRefresh deletes token from the user's list in a single conditional
// statement. It reports whether this call was the one that removed it, so
// concurrent presentations of the same token cannot both succeed.
func (r *GormRepo) RemoveRefresh(ctx context.Context, userID, token string) (bool, error) {
	res := r.DB.WithContext(ctx).
		Where("user_id = ? AND token_hash = ?", userID, hash.Sha256Hex(token)).
		Delete(&models.RefreshToken{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RemoveRefreshToken deletes token regardless of its owner (logout).
func (r *GormRepo) RemoveRefreshToken(ctx context.Context, token string) (bool, error) {
	res := r.DB.WithContext(ctx).
		Where("token_hash = ?", hash.Sha256Hex(token)).
		Delete(&models.RefreshToken{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormRepo) ClearRefresh(ctx context.Context, userID string) (int64, error) {
	res := r.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}

func (r *GormRepo) HasRefresh(ctx context.Context, userID, token string) (bool, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND token_hash = ?", userID, hash.Sha256Hex(token)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormRepo) ListRefresh(ctx context.Context, userID string) ([]models.RefreshToken, error) {
	var rows []models.RefreshToken
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// PruneExpired drops list entries whose credential can no longer verify.
func (r *GormRepo) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).Where("expires_at < ?", now.UTC()).Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}
