package db

import (
	"context"
	"testing"

	"keyledger/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormLogsGoThroughZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	service, err := NewService(config.DatabaseConfig{Type: "sqlite", DSN: "file:gorm_logger?mode=memory&cache=shared"}, zap.New(core))
	require.NoError(t, err)
	t.Cleanup(func() { _ = service.Close() })
	logs.TakeAll()

	// Lookups that miss are expected and stay quiet.
	_, err = service.FindByName(context.Background(), "nobody")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, logs.Len())

	require.Error(t, service.GetDB().Exec("SELECT * FROM no_such_table").Error)
	failed := logs.FilterMessage("Query failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.ErrorLevel, failed[0].Level)
	assert.Equal(t, "gorm", failed[0].ContextMap()["component"])
	assert.Contains(t, failed[0].ContextMap()["sql"], "no_such_table")
}

func TestGormLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := newGormLogger(zap.New(core))

	l.Info(context.Background(), "hidden %d", 1)
	assert.Zero(t, logs.Len())

	l.LogMode(gormlogger.Info).Info(context.Background(), "shown %d", 2)
	assert.Equal(t, 1, logs.FilterMessage("shown 2").Len())

	l.LogMode(gormlogger.Silent).Error(context.Background(), "dropped")
	assert.Equal(t, 0, logs.FilterMessage("dropped").Len())
}
