package repository

import (
	"context"
	"errors"

	"ReadingFM/db"
	"ReadingFM/model"

	"gorm.io/gorm"
)

// ErrVersionConflict 同一旅程下版本号已被占用
var ErrVersionConflict = errors.New("reading log version already exists")

// LogRepository 阅读记录数据访问接口。记录只追加，不提供更新。
type LogRepository interface {
	CreateLog(ctx context.Context, log *model.ReadingLog) error
	DeleteLog(ctx context.Context, id string) error
	CountLogs(ctx context.Context, journeyID string) (int64, error)
	ListLogs(ctx context.Context, journeyID string) ([]*model.ReadingLog, error)
	ListRecentLogs(ctx context.Context, journeyID string, limit int) ([]*model.ReadingLog, error)
	GetLogByTrackID(ctx context.Context, trackID string) (*model.ReadingLog, error)
	CountByJourneys(ctx context.Context, journeyIDs []string) (map[string]LogCounts, error)
}

// LogCounts 旅程下的记录数和带音乐的记录数
type LogCounts struct {
	Logs   int64
	Tracks int64
}

// gormLogRepository GORM 实现
type gormLogRepository struct {
	db *gorm.DB
}

// NewGormLogRepository 创建 GORM 记录仓库
func NewGormLogRepository(db *gorm.DB) LogRepository {
	return &gormLogRepository{db: db}
}

// CreateLog 写入记录，(journey_id, version) 唯一
func (r *gormLogRepository) CreateLog(ctx context.Context, log *model.ReadingLog) error {
	err := r.db.WithContext(ctx).Create(log).Error
	if db.IsDuplicateKey(err) {
		return ErrVersionConflict
	}
	return err
}

// DeleteLog 删除记录，仅用于补偿
func (r *gormLogRepository) DeleteLog(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.ReadingLog{}).Error
}

// CountLogs 统计旅程下的记录数，即下一个版本号
func (r *gormLogRepository) CountLogs(ctx context.Context, journeyID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ReadingLog{}).
		Where("journey_id = ?", journeyID).
		Count(&count).Error
	return count, err
}

// ListLogs 按版本升序获取全部记录
func (r *gormLogRepository) ListLogs(ctx context.Context, journeyID string) ([]*model.ReadingLog, error) {
	var logs []*model.ReadingLog
	err := r.db.WithContext(ctx).
		Where("journey_id = ?", journeyID).
		Order("version ASC").
		Find(&logs).Error
	return logs, err
}

// ListRecentLogs 获取最近 limit 条记录，按版本升序返回
func (r *gormLogRepository) ListRecentLogs(ctx context.Context, journeyID string, limit int) ([]*model.ReadingLog, error) {
	var logs []*model.ReadingLog
	err := r.db.WithContext(ctx).
		Where("journey_id = ?", journeyID).
		Order("version DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
	return logs, nil
}

// GetLogByTrackID 查找引用该音乐的记录，不存在时返回 nil, nil
func (r *gormLogRepository) GetLogByTrackID(ctx context.Context, trackID string) (*model.ReadingLog, error) {
	var log model.ReadingLog
	err := r.db.WithContext(ctx).Where("music_track_id = ?", trackID).First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &log, nil
}

// CountByJourneys 批量统计记录数，没有记录的旅程不出现在结果中
func (r *gormLogRepository) CountByJourneys(ctx context.Context, journeyIDs []string) (map[string]LogCounts, error) {
	result := make(map[string]LogCounts, len(journeyIDs))
	if len(journeyIDs) == 0 {
		return result, nil
	}

	var rows []struct {
		JourneyID string
		Logs      int64
		Tracks    int64
	}
	err := r.db.WithContext(ctx).Model(&model.ReadingLog{}).
		Select("journey_id, COUNT(*) AS logs, COUNT(music_track_id) AS tracks").
		Where("journey_id IN ?", journeyIDs).
		Group("journey_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.JourneyID] = LogCounts{Logs: row.Logs, Tracks: row.Tracks}
	}
	return result, nil
}
