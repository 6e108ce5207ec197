package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type snapshot struct {
	Key       string `gorm:"primaryKey"`
	Data      []byte `gorm:"not null"`
	UpdatedAt time.Time
}

func (snapshot) TableName() string { return "snapshots" }

type Postgres struct {
	db *gorm.DB
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("store: POSTGRES_DSN is required for the postgres driver")
	}

	p, err := openPostgres(postgres.Open(dsn))
	if err != nil {
		return nil, err
	}
	if err := p.db.WithContext(ctx).AutoMigrate(&snapshot{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return p, nil
}

func openPostgres(dialector gorm.Dialector) (*Postgres, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Load(ctx context.Context, key string) ([]byte, error) {
	var s snapshot
	err := p.db.WithContext(ctx).First(&s, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return s.Data, nil
}

func (p *Postgres) Save(ctx context.Context, key string, data []byte) error {
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&snapshot{Key: key, Data: data, UpdatedAt: time.Now().UTC()}).Error
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
