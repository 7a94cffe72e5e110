// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// SportsCenter outcome record, created exactly once per completed
// conversation and immutable thereafter.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sporttia/onboarding-backend/internal/domain"
)

// CreateSportsCenter inserts the outcome row produced by a successful
// provisioning call.
func CreateSportsCenter(ctx context.Context, db *gorm.DB, externalID, name, city, adminEmail string) (*domain.SportsCenter, error) {
	sc := &domain.SportsCenter{
		ID:         uuid.NewString(),
		ExternalID: externalID,
		Name:       name,
		City:       city,
		AdminEmail: adminEmail,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(sc).Error; err != nil {
		return nil, err
	}
	return sc, nil
}

// GetSportsCenter fetches an outcome row by ID, or ErrNotFound.
func GetSportsCenter(ctx context.Context, db *gorm.DB, id string) (*domain.SportsCenter, error) {
	var sc domain.SportsCenter
	if err := db.WithContext(ctx).Where("id = ?", id).First(&sc).Error; err != nil {
		return nil, err
	}
	return &sc, nil
}
