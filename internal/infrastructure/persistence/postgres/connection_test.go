package postgres

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfig_Defaults(t *testing.T) {
	cfg, err := Config{DSN: "postgres://u:p@localhost:5432/registrar?sslmode=disable"}.PoolConfig()
	require.NoError(t, err)

	assert.Equal(t, int32(10), cfg.MaxConns)
	assert.Equal(t, int32(2), cfg.MinConns)
	assert.Equal(t, time.Hour, cfg.MaxConnLifetime)
}

func TestPoolConfig_MinClampedToMax(t *testing.T) {
	cfg, err := Config{DSN: "postgres://localhost/registrar", MaxConns: 1, MinConns: 5}.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(1), cfg.MinConns)
}

func TestPoolConfig_BadDSN(t *testing.T) {
	_, err := Config{DSN: "postgres://%zz"}.PoolConfig()
	assert.Error(t, err)
}

func TestErrorHelpers(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	fk := &pgconn.PgError{Code: "23503"}
	serial := &pgconn.PgError{Code: "40001"}

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(fk))
	assert.True(t, IsForeignKeyViolation(fk))
	assert.True(t, IsSerializationFailure(serial))
	assert.True(t, IsNoRows(fmt.Errorf("scan: %w", pgx.ErrNoRows)))
}

func TestGetMigrations_Ordered(t *testing.T) {
	migs := GetMigrations()
	require.NotEmpty(t, migs)

	for i, m := range migs {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL, m.Name)
		assert.NotEmpty(t, m.DownSQL, m.Name)
	}

	all := ""
	for _, m := range migs {
		all += m.UpSQL
	}
	assert.True(t, strings.Contains(all, "UNIQUE (student_id, course_id, level, semester, year, month)"))
}
