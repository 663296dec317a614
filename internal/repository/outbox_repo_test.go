package repository

import (
	"context"
	"testing"

	"paytransfer/internal/infrastructure/database/dbtest"
	"paytransfer/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxRepository_Lifecycle(t *testing.T) {
	repo := NewOutboxRepository(dbtest.New(t))
	ctx := context.Background()

	for _, key := range []string{"1", "2"} {
		require.NoError(t, repo.Create(ctx, &model.OutboxMessage{
			MessageKey: key,
			Topic:      "notification_topic",
			Payload:    "{}",
			Status:     model.OutboxStatusPending,
		}))
	}

	pending, err := repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "1", pending[0].MessageKey)

	require.NoError(t, repo.MarkAsSent(ctx, pending[0].ID))
	require.NoError(t, repo.IncrementRetryCount(ctx, pending[1].ID))
	require.NoError(t, repo.MarkAsFailed(ctx, pending[1].ID))

	pending, err = repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	var failed []*model.OutboxMessage
	require.NoError(t, repo.db.Where("status = ?", model.OutboxStatusFailed).Find(&failed).Error)
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].RetryCount)
}

func TestCompensationRepository_RecordFailure(t *testing.T) {
	repo := NewCompensationRepository(dbtest.New(t))
	ctx := context.Background()

	comp := &model.Compensation{
		TransactionNo: "TXN1",
		AccountID:     1,
		Amount:        dec("20"),
		Status:        model.CompensationStatusPending,
	}
	require.NoError(t, repo.Create(ctx, comp))

	require.NoError(t, repo.RecordFailure(ctx, comp, "db down", 2))
	pending, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount)
	assert.Equal(t, "db down", pending[0].LastError)

	require.NoError(t, repo.RecordFailure(ctx, pending[0], "still down", 2))
	pending, err = repo.GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCompensationRepository_Apply(t *testing.T) {
	db := dbtest.New(t)
	repo := NewCompensationRepository(db)
	balances := NewBalanceRepository(db)
	ctx := context.Background()
	seedBalance(t, balances, 1, "0")

	comp := &model.Compensation{TransactionNo: "TXN1", AccountID: 1, Amount: dec("20"), Status: model.CompensationStatusPending}
	require.NoError(t, repo.Create(ctx, comp))
	require.NoError(t, repo.Apply(ctx, comp))

	// 同一条记录再次处理不会重复加钱
	assert.ErrorIs(t, repo.Apply(ctx, comp), ErrCompensationSettled)
	assert.ErrorIs(t, repo.RecordFailure(ctx, comp, "late", 5), ErrCompensationSettled)

	b, err := balances.GetByAccountID(ctx, 1)
	require.NoError(t, err)
	assertAmount(t, "20", b.Amount)

	entries, err := balances.ListEntries(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.EntryTypeReversal, entries[0].Type)
	assert.Equal(t, "TXN1", entries[0].Reference)

	pending, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCompensationRepository_ApplyRollsBackWithoutAccount(t *testing.T) {
	repo := NewCompensationRepository(dbtest.New(t))
	ctx := context.Background()

	comp := &model.Compensation{TransactionNo: "TXN1", AccountID: 9, Amount: dec("20"), Status: model.CompensationStatusPending}
	require.NoError(t, repo.Create(ctx, comp))

	assert.ErrorIs(t, repo.Apply(ctx, comp), ErrAccountNotFound)

	// 加余额失败时状态一并回滚，仍可重试
	pending, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}
