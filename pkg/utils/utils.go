package utils

import (
	"context"
	"errors"
	"math"

	"github.com/joho/godotenv"
	"github.com/wacrm/pkg/constant"
	"go.uber.org/zap"

	"gorm.io/gorm"
)

const PageSize = 10

func LoadEnv() {
	err := godotenv.Load()
	if err != nil {
		// Don't fail if .env file doesn't exist
		// Environment variables can be provided via Docker Compose or system
		zap.L().Info(".env file not found, using system environment variables")
	}
}

// Pagination loads page pageNumber of item into item and returns the number of pages.
// scope, when set, only shapes the page query (ordering, preloads).
func Pagination(item interface{}, pageNumber int, db *gorm.DB, c context.Context, scope func(*gorm.DB) *gorm.DB, query interface{}, args ...interface{}) (int, error) {
	var totalCount int64
	if err := db.WithContext(c).Model(item).Where(query, args...).Count(&totalCount).Error; err != nil {
		return 0, err
	}

	// Calculate total pages
	totalPages := int(math.Ceil(float64(totalCount) / float64(PageSize)))

	if pageNumber <= 0 || (pageNumber > totalPages && !(totalPages == 0 && pageNumber == 1)) {
		return 0, errors.New(constant.PAGE_NUMBER_OUT_OF_RANGE)
	}
	if totalPages == 0 {
		return 0, nil
	}

	offset := (pageNumber - 1) * PageSize
	tx := db.WithContext(c)
	if scope != nil {
		tx = scope(tx)
	}
	if err := tx.Limit(PageSize).Offset(offset).Where(query, args...).Find(item).Error; err != nil {
		return 0, err
	}
	return totalPages, nil
}
