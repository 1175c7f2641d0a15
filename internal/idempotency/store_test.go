package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-donut-locker-orderflow/internal/aws/awstest"
)

const table = "PnlIdempotency"

func newTestStore() (*Store, *awstest.DynamoDB) {
	db := awstest.NewDynamoDB()
	db.CreateTable(table, "idempotency_key")
	s := NewStore(db, table, 48*time.Hour)
	s.nowFunc = func() time.Time { return time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC) }
	return s, db
}

func TestCreateIfNotExists_Get_MarkDone_MarkFailed(t *testing.T) {
	s, db := newTestStore()
	ctx := context.Background()
	key := "test-key-1"

	created, err := s.CreateIfNotExists(ctx, key, 123, "abc")
	require.NoError(t, err)
	assert.True(t, created)

	// second create reports the existing record
	created, err = s.CreateIfNotExists(ctx, key, 456, "abc")
	require.NoError(t, err)
	assert.False(t, created)

	rec, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusInProgress, rec.Status)
	assert.Equal(t, int64(123), rec.OrderID)
	assert.Equal(t, time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC).Unix(), rec.ExpiresAt)

	require.NoError(t, s.MarkDone(ctx, key, `{"ok":true}`, 201))
	item := db.Item(table, &types.AttributeValueMemberS{Value: key})
	assert.Equal(t, &types.AttributeValueMemberS{Value: StatusDone}, item["status"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: `{"ok":true}`}, item["response_body"])

	rec, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 201, rec.ResponseStatus)

	require.NoError(t, s.MarkFailed(ctx, key, "failed-reason"))
	rec, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, "failed-reason", rec.Note)
}

func TestGet_Missing(t *testing.T) {
	s, _ := newTestStore()
	rec, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMarkDone_UnknownKeyCreatesNothing(t *testing.T) {
	s, db := newTestStore()
	err := s.MarkDone(context.Background(), "ghost", "{}", 200)
	require.Error(t, err)
	assert.Empty(t, db.Items(table))
}

func TestCreateIfNotExists_DownstreamError(t *testing.T) {
	s, db := newTestStore()
	db.FailOn("PutItem", errors.New("throttled"))

	created, err := s.CreateIfNotExists(context.Background(), "k", 1, "")
	assert.False(t, created)
	assert.ErrorContains(t, err, "throttled")
}

func TestRecordMatches(t *testing.T) {
	rec := IdempotencyRecord{RequestHash: Fingerprint([]byte(`{"a":1}`))}
	assert.True(t, rec.Matches(Fingerprint([]byte(`{"a":1}`))))
	assert.False(t, rec.Matches(Fingerprint([]byte(`{"a":2}`))))
	assert.True(t, IdempotencyRecord{}.Matches("anything"))
}
