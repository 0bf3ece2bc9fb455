package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresClient_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	client := &PostgresClient{DB: db}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS form_submissions")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, client.EnsureSchema(context.Background()))

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))
	err = client.EnsureSchema(context.Background())
	assert.ErrorContains(t, err, "permission denied")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisClient_SetNX(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	require.NoError(t, client.Ping(ctx))

	ok, err := client.SetNX(ctx, "dup:contact:abc", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetNX(ctx, "dup:contact:abc", "1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = client.SetNX(ctx, "dup:contact:abc", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "key expires after the window")

	require.NoError(t, client.Del(ctx, "dup:contact:abc"))
	assert.False(t, mr.Exists("dup:contact:abc"))
	assert.NoError(t, client.Close())
}
