package service

import (
	"context"
	"testing"

	"paytransfer/internal/infrastructure/database/dbtest"
	"paytransfer/internal/model"
	"paytransfer/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxNotifier_EmitWritesPendingMessage(t *testing.T) {
	db := dbtest.New(t)
	n := NewOutboxNotifier(db, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Emit(ctx, 7, "You sent 1.00 to Bob.", model.NotificationTypeTransaction)

	msgs, err := repository.NewOutboxRepository(db).GetPendingMessages(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "notification_topic", msgs[0].Topic)
	assert.Equal(t, "7", msgs[0].MessageKey)
	assert.JSONEq(t, `{"userId":7,"message":"You sent 1.00 to Bob.","type":"Transaction"}`, msgs[0].Payload)
}
