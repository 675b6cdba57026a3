package repository

import (
	"context"
	"errors"
	"time"

	"watchcache/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:generate mockgen -source=resource_record.go -destination=mocks/resource_record.go -package=mock_repository

type ResourceRecordRepository interface {
	// Upsert 写入记录，hash 未变化时只更新同步时间，返回是否发生了内容变化
	Upsert(ctx context.Context, record *model.ResourceRecord) (bool, error)
	DeleteByKey(ctx context.Context, kind, key string) error
	GetByKey(ctx context.Context, kind, key string) (*model.ResourceRecord, error)
	ListByKind(ctx context.Context, kind string) ([]*model.ResourceRecord, error)
	CountByKind(ctx context.Context) (map[string]int64, error)
}

func NewResourceRecordRepository(r *Repository) ResourceRecordRepository {
	return &resourceRecordRepository{Repository: r}
}

type resourceRecordRepository struct {
	*Repository
}

func (r *resourceRecordRepository) Upsert(ctx context.Context, record *model.ResourceRecord) (bool, error) {
	now := time.Now()
	record.LastSyncTime = now
	record.UpdateTime = now

	changed := true
	err := r.Transaction(ctx, func(ctx context.Context) error {
		existing, err := r.GetByKey(ctx, record.Kind, record.Key)
		if err != nil {
			return err
		}
		if existing != nil && existing.ResourceHash == record.ResourceHash {
			changed = false
			return r.DB(ctx).Model(existing).Update("last_sync_time", now).Error
		}
		if existing != nil {
			record.CreateTime = existing.CreateTime
		} else {
			record.CreateTime = now
		}
		return r.DB(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "kind"}, {Name: "resource_key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"namespace", "name", "resource_version", "resource_hash", "data", "last_sync_time", "gmt_modified",
			}),
		}).Create(record).Error
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (r *resourceRecordRepository) DeleteByKey(ctx context.Context, kind, key string) error {
	return r.DB(ctx).Where("kind = ? AND resource_key = ?", kind, key).Delete(&model.ResourceRecord{}).Error
}

func (r *resourceRecordRepository) GetByKey(ctx context.Context, kind, key string) (*model.ResourceRecord, error) {
	var record model.ResourceRecord
	if err := r.DB(ctx).Where("kind = ? AND resource_key = ?", kind, key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *resourceRecordRepository) ListByKind(ctx context.Context, kind string) ([]*model.ResourceRecord, error) {
	var records []*model.ResourceRecord
	query := r.DB(ctx).Model(&model.ResourceRecord{})
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if err := query.Order("kind, resource_key").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *resourceRecordRepository) CountByKind(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Kind  string
		Total int64
	}
	if err := r.DB(ctx).Model(&model.ResourceRecord{}).
		Select("kind, count(*) as total").
		Group("kind").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	result := make(map[string]int64, len(rows))
	for _, row := range rows {
		result[row.Kind] = row.Total
	}
	return result, nil
}
