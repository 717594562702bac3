// Package identitycache keeps the signed-in user's profile across process
// restarts. It never stores credentials.
package identitycache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Identity struct {
	ID         string `json:"_id"`
	Email      string `json:"email"`
	Name       string `json:"name,omitempty"`
	IsVerified bool   `json:"isVerified"`
}

type Cache interface {
	// Load returns nil, nil when nothing is cached.
	Load(ctx context.Context) (*Identity, error)
	Save(ctx context.Context, id *Identity) error
	Clear(ctx context.Context) error
}

const currentSlot = "current"

type cachedIdentity struct {
	Slot       string `gorm:"primaryKey"`
	UserID     string `gorm:"not null"`
	Email      string `gorm:"not null"`
	Name       string
	IsVerified bool
	UpdatedAt  time.Time
}

func (cachedIdentity) TableName() string { return "identity_cache" }

// SQLiteCache persists the identity in a local SQLite file.
type SQLiteCache struct {
	db *gorm.DB
}

func OpenSQLite(path string) (*SQLiteCache, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("identitycache: open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("identitycache: sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&cachedIdentity{}); err != nil {
		return nil, fmt.Errorf("identitycache: migrate: %w", err)
	}
	return &SQLiteCache{db: db}, nil
}

func (c *SQLiteCache) Load(ctx context.Context) (*Identity, error) {
	var row cachedIdentity
	err := c.db.WithContext(ctx).Where("slot = ?", currentSlot).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identitycache: load: %w", err)
	}
	return &Identity{ID: row.UserID, Email: row.Email, Name: row.Name, IsVerified: row.IsVerified}, nil
}

func (c *SQLiteCache) Save(ctx context.Context, id *Identity) error {
	if id == nil {
		return c.Clear(ctx)
	}
	row := cachedIdentity{
		Slot:       currentSlot,
		UserID:     id.ID,
		Email:      id.Email,
		Name:       id.Name,
		IsVerified: id.IsVerified,
	}
	if err := c.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("identitycache: save: %w", err)
	}
	return nil
}

func (c *SQLiteCache) Clear(ctx context.Context) error {
	if err := c.db.WithContext(ctx).Where("slot = ?", currentSlot).Delete(&cachedIdentity{}).Error; err != nil {
		return fmt.Errorf("identitycache: clear: %w", err)
	}
	return nil
}

func (c *SQLiteCache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Memory is a process-local Cache.
type Memory struct {
	mu sync.Mutex
	id *Identity
}

func (m *Memory) Load(context.Context) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.id == nil {
		return nil, nil
	}
	cp := *m.id
	return &cp, nil
}

func (m *Memory) Save(_ context.Context, id *Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == nil {
		m.id = nil
		return nil
	}
	cp := *id
	m.id = &cp
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	m.id = nil
	m.mu.Unlock()
	return nil
}
