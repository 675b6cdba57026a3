package service

import (
	"context"
	"errors"
	"testing"
	"time"

	v1 "watchcache/api/v1"
	"watchcache/internal/model"
	mock_repository "watchcache/internal/repository/mocks"
	"watchcache/pkg/log"
	"watchcache/pkg/sid"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordServiceListRecords(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mock_repository.NewMockResourceRecordRepository(ctrl)
	svc := NewRecordService(NewService(nil, log.NewNop(), sid.NewSid()), repo)
	now := time.Now()

	repo.EXPECT().ListByKind(gomock.Any(), "pods").Return([]*model.ResourceRecord{
		{
			Kind:            "pods",
			Key:             "default/nginx",
			Namespace:       "default",
			Name:            "nginx",
			ResourceVersion: "7",
			ResourceHash:    "abc",
			Data:            `{"kind":"pods","metadata":{"name":"nginx"}}`,
			LastSyncTime:    now,
		},
	}, nil)

	data, err := svc.ListRecords(context.Background(), &v1.ListRecordsRequest{Kind: "pods"})
	require.NoError(t, err)
	require.Equal(t, 1, data.Total)
	item := data.Items[0]
	assert.Equal(t, "default/nginx", item.Key)
	assert.Equal(t, "7", item.ResourceVersion)
	assert.Equal(t, now, item.LastSyncTime)
	obj, ok := item.Object.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "pods", obj["kind"])
}

func TestRecordServiceErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mock_repository.NewMockResourceRecordRepository(ctrl)
	svc := NewRecordService(NewService(nil, log.NewNop(), sid.NewSid()), repo)

	repo.EXPECT().ListByKind(gomock.Any(), "").Return(nil, errors.New("connection refused"))
	_, err := svc.ListRecords(context.Background(), &v1.ListRecordsRequest{})
	assert.ErrorIs(t, err, v1.ErrInternalServerError)

	repo.EXPECT().CountByKind(gomock.Any()).Return(map[string]int64{"pods": 2}, nil)
	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Counts["pods"])
}
