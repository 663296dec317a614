package repository

import (
	"context"
	"testing"
	"time"

	"paytransfer/internal/infrastructure/database/dbtest"
	"paytransfer/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransaction(no string, sender int64, recipient *int64, ts time.Time) *model.Transaction {
	trans := &model.Transaction{
		TransactionNo: no,
		SenderID:      sender,
		RecipientID:   recipient,
		Amount:        dec("10.00"),
		Description:   "lunch",
		Timestamp:     ts,
	}
	if recipient == nil {
		trans.Fail(model.FailureRecipientNotFound, "")
	} else {
		trans.Complete()
	}
	return trans
}

func TestTransactionRepository_RoundTrip(t *testing.T) {
	repo := NewTransactionRepository(dbtest.New(t))
	ctx := context.Background()

	recipient := int64(2)
	trans := newTransaction("TXN1", 1, &recipient, time.Now())
	require.NoError(t, repo.Create(ctx, trans))
	require.NotZero(t, trans.ID)

	got, err := repo.GetByID(ctx, trans.ID)
	require.NoError(t, err)
	assert.Equal(t, "TXN1", got.TransactionNo)
	require.NotNil(t, got.RecipientID)
	assert.Equal(t, int64(2), *got.RecipientID)
	assert.Equal(t, "COMPLETED", got.StatusText())
	assertAmount(t, "10", got.Amount)

	byNo, err := repo.GetByTransactionNo(ctx, "TXN1")
	require.NoError(t, err)
	assert.Equal(t, trans.ID, byNo.ID)

	_, err = repo.GetByID(ctx, 999)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestTransactionRepository_FailedWithoutRecipient(t *testing.T) {
	repo := NewTransactionRepository(dbtest.New(t))
	ctx := context.Background()

	trans := newTransaction("TXN1", 1, nil, time.Now())
	require.NoError(t, repo.Create(ctx, trans))

	got, err := repo.GetByID(ctx, trans.ID)
	require.NoError(t, err)
	assert.Nil(t, got.RecipientID)
	assert.Equal(t, "FAILED: Recipient user not found", got.StatusText())
}

func TestTransactionRepository_ListByAccountID(t *testing.T) {
	repo := NewTransactionRepository(dbtest.New(t))
	ctx := context.Background()

	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	two, three := int64(2), int64(3)
	require.NoError(t, repo.Create(ctx, newTransaction("TXN1", 1, &two, base)))
	require.NoError(t, repo.Create(ctx, newTransaction("TXN2", 2, &three, base.Add(time.Minute))))
	require.NoError(t, repo.Create(ctx, newTransaction("TXN3", 3, &two, base.Add(2*time.Minute))))
	require.NoError(t, repo.Create(ctx, newTransaction("TXN4", 1, &three, base.Add(3*time.Minute))))

	list, total, err := repo.ListByAccountID(ctx, 2, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, list, 3)
	assert.Equal(t, "TXN3", list[0].TransactionNo)
	assert.Equal(t, "TXN2", list[1].TransactionNo)
	assert.Equal(t, "TXN1", list[2].TransactionNo)

	page2, total, err := repo.ListByAccountID(ctx, 2, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page2, 1)
	assert.Equal(t, "TXN1", page2[0].TransactionNo)
}

func TestTransactionRepository_DeleteByAccountID(t *testing.T) {
	repo := NewTransactionRepository(dbtest.New(t))
	ctx := context.Background()

	two, three := int64(2), int64(3)
	require.NoError(t, repo.Create(ctx, newTransaction("TXN1", 1, &two, time.Now())))
	require.NoError(t, repo.Create(ctx, newTransaction("TXN2", 3, &two, time.Now())))
	require.NoError(t, repo.Create(ctx, newTransaction("TXN3", 3, &three, time.Now())))

	deleted, err := repo.DeleteByAccountID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, total, err := repo.ListByAccountID(ctx, 3, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}
