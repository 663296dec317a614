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

func newPendingRequest(requester, recipient int64, ts time.Time) *model.MoneyRequest {
	return &model.MoneyRequest{
		RequesterID: requester,
		RecipientID: recipient,
		Amount:      dec("75.00"),
		Message:     "dinner",
		Status:      model.RequestStatusPending,
		Timestamp:   ts,
	}
}

func TestMoneyRequestRepository_UpdateStatus(t *testing.T) {
	repo := NewMoneyRequestRepository(dbtest.New(t))
	ctx := context.Background()

	req := newPendingRequest(1, 2, time.Now())
	require.NoError(t, repo.Create(ctx, req))

	require.NoError(t, repo.UpdateStatus(ctx, req.ID, model.RequestStatusPending, model.RequestStatusApproved))

	// 已经不是 pending，条件更新不生效
	err := repo.UpdateStatus(ctx, req.ID, model.RequestStatusPending, model.RequestStatusRejected)
	assert.ErrorIs(t, err, ErrRequestStatusInvalid)

	// 状态机不允许
	err = repo.UpdateStatus(ctx, req.ID, model.RequestStatusApproved, model.RequestStatusRejected)
	assert.ErrorIs(t, err, ErrRequestStatusInvalid)

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusApproved, got.Status)
}

func TestMoneyRequestRepository_DeletePending(t *testing.T) {
	repo := NewMoneyRequestRepository(dbtest.New(t))
	ctx := context.Background()

	pending := newPendingRequest(1, 2, time.Now())
	require.NoError(t, repo.Create(ctx, pending))
	rejected := newPendingRequest(1, 2, time.Now())
	rejected.Status = model.RequestStatusRejected
	require.NoError(t, repo.Create(ctx, rejected))

	require.NoError(t, repo.DeletePending(ctx, pending.ID))
	_, err := repo.GetByID(ctx, pending.ID)
	assert.ErrorIs(t, err, ErrRequestNotFound)

	assert.ErrorIs(t, repo.DeletePending(ctx, rejected.ID), ErrRequestStatusInvalid)
	_, err = repo.GetByID(ctx, rejected.ID)
	assert.NoError(t, err)
}

func TestMoneyRequestRepository_ListByAccountID(t *testing.T) {
	repo := NewMoneyRequestRepository(dbtest.New(t))
	ctx := context.Background()

	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	first := newPendingRequest(1, 2, base)
	second := newPendingRequest(2, 3, base.Add(time.Minute))
	third := newPendingRequest(3, 4, base.Add(2*time.Minute))
	for _, r := range []*model.MoneyRequest{first, second, third} {
		require.NoError(t, repo.Create(ctx, r))
	}
	require.NoError(t, repo.UpdateStatus(ctx, first.ID, model.RequestStatusPending, model.RequestStatusRejected))

	all, err := repo.ListByAccountID(ctx, 2, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, first.ID, all[1].ID)

	pending, err := repo.ListByAccountID(ctx, 2, model.RequestStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
}

func TestMoneyRequestRepository_Claim(t *testing.T) {
	repo := NewMoneyRequestRepository(dbtest.New(t))
	ctx := context.Background()

	req := newPendingRequest(1, 2, time.Now())
	require.NoError(t, repo.Create(ctx, req))

	require.NoError(t, repo.Claim(ctx, req.ID, "TXN1", time.Now()))
	assert.ErrorIs(t, repo.Claim(ctx, req.ID, "TXN2", time.Now()), ErrRequestClaimed)

	// 占用期间不能拒绝或取消
	err := repo.UpdateStatus(ctx, req.ID, model.RequestStatusPending, model.RequestStatusRejected)
	assert.ErrorIs(t, err, ErrRequestStatusInvalid)
	assert.ErrorIs(t, repo.DeletePending(ctx, req.ID), ErrRequestStatusInvalid)

	// 只有占用者能完成或释放
	assert.ErrorIs(t, repo.CompleteClaim(ctx, req.ID, "TXN2"), ErrRequestStatusInvalid)
	assert.ErrorIs(t, repo.ReleaseClaim(ctx, req.ID, "TXN2"), ErrRequestStatusInvalid)

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "TXN1", got.ClaimNo)
	require.NotNil(t, got.ClaimedAt)

	require.NoError(t, repo.ReleaseClaim(ctx, req.ID, "TXN1"))
	got, err = repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, got.Claimed())
	assert.Nil(t, got.ClaimedAt)

	require.NoError(t, repo.Claim(ctx, req.ID, "TXN2", time.Now()))
	require.NoError(t, repo.CompleteClaim(ctx, req.ID, "TXN2"))
	got, err = repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusApproved, got.Status)

	assert.ErrorIs(t, repo.Claim(ctx, req.ID, "TXN3", time.Now()), ErrRequestStatusInvalid)
	assert.ErrorIs(t, repo.Claim(ctx, 999, "TXN3", time.Now()), ErrRequestNotFound)
}
