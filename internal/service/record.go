package service

import (
	"context"
	"encoding/json"

	v1 "watchcache/api/v1"
	"watchcache/internal/repository"

	"go.uber.org/zap"
)

type RecordService interface {
	ListRecords(ctx context.Context, req *v1.ListRecordsRequest) (*v1.ListRecordsData, error)
	Summary(ctx context.Context) (*v1.RecordSummaryData, error)
}

func NewRecordService(
	service *Service,
	recordRepo repository.ResourceRecordRepository,
) RecordService {
	return &recordService{
		Service:    service,
		recordRepo: recordRepo,
	}
}

type recordService struct {
	*Service
	recordRepo repository.ResourceRecordRepository
}

// ListRecords kind 为空时返回全部记录
func (s *recordService) ListRecords(ctx context.Context, req *v1.ListRecordsRequest) (*v1.ListRecordsData, error) {
	records, err := s.recordRepo.ListByKind(ctx, req.Kind)
	if err != nil {
		s.logger.WithContext(ctx).Error("recordRepo.ListByKind error", zap.String("kind", req.Kind), zap.Error(err))
		return nil, v1.ErrInternalServerError
	}

	items := make([]v1.RecordItem, 0, len(records))
	for _, r := range records {
		var obj interface{}
		if err := json.Unmarshal([]byte(r.Data), &obj); err != nil {
			s.logger.WithContext(ctx).Warn("invalid record data", zap.String("kind", r.Kind), zap.String("key", r.Key), zap.Error(err))
		}
		items = append(items, v1.RecordItem{
			Kind:            r.Kind,
			Key:             r.Key,
			Namespace:       r.Namespace,
			Name:            r.Name,
			ResourceVersion: r.ResourceVersion,
			ResourceHash:    r.ResourceHash,
			Object:          obj,
			LastSyncTime:    r.LastSyncTime,
			UpdateTime:      r.UpdateTime,
		})
	}
	return &v1.ListRecordsData{Total: len(items), Items: items}, nil
}

func (s *recordService) Summary(ctx context.Context) (*v1.RecordSummaryData, error) {
	counts, err := s.recordRepo.CountByKind(ctx)
	if err != nil {
		s.logger.WithContext(ctx).Error("recordRepo.CountByKind error", zap.Error(err))
		return nil, v1.ErrInternalServerError
	}
	return &v1.RecordSummaryData{Counts: counts}, nil
}
