package listing

import (
	"context"
	"errors"

	"github.com/alanchelmickjr/price-is-right-sub000/internal/shared"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Listing{})
}

func (s *Store) Create(ctx context.Context, l *Listing) error {
	if l.ID == "" {
		l.ID = shared.NewID("lst_")
	}
	if l.Status == "" {
		l.Status = shared.ListingStatusDraft
	}
	if l.Currency == "" {
		l.Currency = "USD"
	}
	return s.db.WithContext(ctx).Create(l).Error
}

func (s *Store) GetByID(ctx context.Context, id string) (*Listing, error) {
	var l Listing
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &l, err
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*Listing, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var listings []*Listing
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&listings).Error
	return listings, err
}

func (s *Store) Update(ctx context.Context, l *Listing) error {
	return s.db.WithContext(ctx).Save(l).Error
}

func (s *Store) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&Listing{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
