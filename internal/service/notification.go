package service

import (
	"context"
	"encoding/json"
	"strconv"

	"paytransfer/internal/config"
	"paytransfer/internal/infrastructure/logger"
	"paytransfer/internal/model"
	"paytransfer/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OutboxNotifier 把通知写入 outbox 表，由 OutboxSender 异步投递到 Kafka。
// 写入失败只记录日志，不影响业务结果
type OutboxNotifier struct {
	outboxRepo *repository.OutboxRepository
	topic      string
	log        *zap.Logger
}

var _ NotificationEmitter = (*OutboxNotifier)(nil)

func NewOutboxNotifier(db *gorm.DB, cfg *config.Config) *OutboxNotifier {
	return &OutboxNotifier{
		outboxRepo: repository.NewOutboxRepository(db),
		topic:      cfg.Kafka.Topic.Notification,
		log:        logger.Named("notifier"),
	}
}

func (n *OutboxNotifier) Emit(ctx context.Context, accountID int64, message, category string) {
	payload, err := json.Marshal(model.NotificationEvent{
		UserID:  accountID,
		Message: message,
		Type:    category,
	})
	if err != nil {
		n.log.Warn("通知序列化失败", zap.Int64("account_id", accountID), zap.Error(err))
		return
	}

	msg := &model.OutboxMessage{
		MessageKey: strconv.FormatInt(accountID, 10),
		Topic:      n.topic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := n.outboxRepo.Create(context.WithoutCancel(ctx), msg); err != nil {
		n.log.Warn("通知写入 outbox 失败", zap.Int64("account_id", accountID), zap.String("type", category), zap.Error(err))
	}
}
