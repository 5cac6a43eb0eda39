package repository

import (
	"time"

	"cabinet/internal/db"
	"cabinet/internal/model"
)

type HistoryRepository struct{}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{}
}

func (r *HistoryRepository) Save(result model.RunResult) (model.History, error) {
	status := model.StatusSuccess
	errMsg := ""
	if result.Err != nil {
		status = model.StatusFailed
		errMsg = result.Err.Error()
	}

	history := model.History{
		Kind:      result.Kind,
		Status:    status,
		SrcPath:   result.SrcPath,
		DstPath:   result.DstPath,
		Policy:    result.Policy,
		Mutations: result.Mutations,
		Failures:  result.Failures,
		ErrMsg:    errMsg,
		RanAt:     time.Now(),
	}

	return history, db.DB.Create(&history).Error
}

type Stats struct {
	Total     int64
	Success   int64
	Failed    int64
	Mutations int64
}

func (r *HistoryRepository) GetStats() (Stats, error) {
	var stats Stats
	if err := db.DB.Model(&model.History{}).Count(&stats.Total).Error; err != nil {
		return stats, err
	}

	if err := db.DB.Model(&model.History{}).
		Where("status = ?", model.StatusSuccess).
		Count(&stats.Success).Error; err != nil {
		return stats, err
	}

	if err := db.DB.Model(&model.History{}).
		Select("COALESCE(SUM(mutations), 0)").
		Scan(&stats.Mutations).Error; err != nil {
		return stats, err
	}

	stats.Failed = stats.Total - stats.Success
	return stats, nil
}

func (r *HistoryRepository) GetRecent(limit int) ([]model.History, error) {
	var histories []model.History
	result := db.DB.
		Order("ran_at desc").
		Limit(limit).
		Find(&histories)

	return histories, result.Error
}

func (r *HistoryRepository) GetFailed() ([]model.History, error) {
	var histories []model.History
	result := db.DB.
		Where("status = ?", model.StatusFailed).
		Order("ran_at desc").
		Find(&histories)

	return histories, result.Error
}
