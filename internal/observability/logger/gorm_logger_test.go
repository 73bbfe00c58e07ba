package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"
)

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("  select * from payments"))
	assert.Equal(t, "UPDATE", operationFromSQL("WITH x AS (SELECT 1) UPDATE payments SET paid_amount = 1"))
	assert.Equal(t, "INSERT", operationFromSQL("INSERT INTO payment_tickets (id) VALUES (1)"))
	assert.Equal(t, "DELETE", operationFromSQL("delete from payment_proofs where id in (select proof_id from payment_proof_targets)"))
	assert.Equal(t, "UPDATE", operationFromSQL("WITH a AS (SELECT (1)), b AS (SELECT 2)\nUPDATE payments SET status = 'paid'"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestParamsFilterHidesValues(t *testing.T) {
	l := NewGormLogger(DefaultGormLoggerConfig())
	sql, params := l.ParamsFilter(context.Background(), "SELECT ?", "secret")
	assert.Equal(t, "SELECT ?", sql)
	assert.Nil(t, params)

	verbose := NewGormLogger(GormLoggerConfig{Level: gormlogger.Info, LogParams: true})
	_, params = verbose.ParamsFilter(context.Background(), "SELECT ?", "visible")
	assert.Equal(t, []interface{}{"visible"}, params)
}

func TestLogModeCopies(t *testing.T) {
	l := NewGormLogger(DefaultGormLoggerConfig())
	quiet := l.LogMode(gormlogger.Silent).(*GormLogger)
	assert.Equal(t, gormlogger.Silent, quiet.cfg.Level)
	assert.Equal(t, gormlogger.Warn, l.cfg.Level)
}
