package repository

import (
	"context"
	"errors"
	"testing"

	"watchcache/internal/model"
	"watchcache/pkg/log"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSqliteRepository(t *testing.T) ResourceRecordRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存数据库只存在于单个连接中
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.ResourceRecord{}))
	return NewResourceRecordRepository(NewRepository(log.NewNop(), db))
}

func record(kind, key, rv, hash string) *model.ResourceRecord {
	return &model.ResourceRecord{
		Kind:            kind,
		Key:             key,
		Name:            key,
		ResourceVersion: rv,
		ResourceHash:    hash,
		Data:            `{"kind":"` + kind + `"}`,
	}
}

func TestResourceRecordUpsert(t *testing.T) {
	repo := newSqliteRepository(t)
	ctx := context.Background()

	changed, err := repo.Upsert(ctx, record("pods", "a", "1", "h1"))
	require.NoError(t, err)
	assert.True(t, changed)

	// hash 相同只刷新同步时间
	changed, err = repo.Upsert(ctx, record("pods", "a", "2", "h1"))
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := repo.GetByKey(ctx, "pods", "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "1", got.ResourceVersion)

	changed, err = repo.Upsert(ctx, record("pods", "a", "3", "h2"))
	require.NoError(t, err)
	assert.True(t, changed)

	got, err = repo.GetByKey(ctx, "pods", "a")
	require.NoError(t, err)
	assert.Equal(t, "3", got.ResourceVersion)
	assert.Equal(t, "h2", got.ResourceHash)

	records, err := repo.ListByKind(ctx, "pods")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestResourceRecordDeleteAndCount(t *testing.T) {
	repo := newSqliteRepository(t)
	ctx := context.Background()

	for _, r := range []*model.ResourceRecord{
		record("pods", "a", "1", "h"),
		record("pods", "b", "1", "h"),
		record("configs", "a", "1", "h"),
	} {
		_, err := repo.Upsert(ctx, r)
		require.NoError(t, err)
	}

	counts, err := repo.CountByKind(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"pods": 2, "configs": 1}, counts)

	require.NoError(t, repo.DeleteByKey(ctx, "pods", "a"))
	got, err := repo.GetByKey(ctx, "pods", "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	all, err := repo.ListByKind(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func newMockRepository(t *testing.T) (ResourceRecordRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	return NewResourceRecordRepository(NewRepository(log.NewNop(), db)), mock
}

func TestResourceRecordGetByKeyError(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("SELECT \\* FROM `resource_record`").
		WillReturnError(errors.New("connection reset"))

	got, err := repo.GetByKey(context.Background(), "pods", "a")
	assert.Error(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceRecordGetByKeyNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("SELECT \\* FROM `resource_record`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "resource_key"}))

	got, err := repo.GetByKey(context.Background(), "pods", "a")
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceRecordUpsertRollsBackOnError(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `resource_record`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "resource_key"}))
	mock.ExpectExec("INSERT INTO `resource_record`").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	changed, err := repo.Upsert(context.Background(), record("pods", "a", "1", "h"))
	assert.Error(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
