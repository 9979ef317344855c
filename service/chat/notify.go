package chat

import (
	"context"

	"RoomChat/logger"
	"RoomChat/module/chat/model"
)

// NotifyPayload：一次事件对一批接收者的通知内容。
type NotifyPayload struct {
	Type     string
	Title    string
	Body     string
	SenderID string
	RoomID   string
	RefID    string // 关联消息的 server_id
}

// Fanout 把领域事件变成持久化通知记录加实时投递。
// 落库与投递互不阻塞：落库失败只记日志，实时投递照常尝试。
type Fanout struct {
	conns *ConnManager
	store NotificationStore
}

func NewFanout(conns *ConnManager, store NotificationStore) *Fanout {
	return &Fanout{conns: conns, store: store}
}

// Notify 为每个接收者建一条通知记录（批量写入），随后逐个做
// 跨房间实时投递。返回成功落库的记录 id（可能为空）。
func (f *Fanout) Notify(ctx context.Context, recipients []string, p NotifyPayload) []string {
	if len(recipients) == 0 {
		return nil
	}

	records := make([]*model.NotificationModel, 0, len(recipients))
	for _, uid := range recipients {
		records = append(records, &model.NotificationModel{
			RecipientID: uid,
			Type:        p.Type,
			Title:       p.Title,
			Body:        p.Body,
			SenderID:    p.SenderID,
			RoomID:      p.RoomID,
			RefID:       p.RefID,
		})
	}

	ids, err := f.store.InsertMany(ctx, records)
	if err != nil {
		logger.Warnf("[notify] persist failed, live delivery continues: %v", err)
	}

	for i, rec := range records {
		id := ""
		if i < len(ids) {
			id = ids[i]
		}
		f.conns.NotifyUser(rec.RecipientID, BuildNotification(id, rec))
	}
	return ids
}

// MarkRead 标记单条已读并向该用户所有连接推送未读数。
func (f *Fanout) MarkRead(ctx context.Context, userID, id string) error {
	if err := f.store.MarkRead(ctx, userID, id); err != nil {
		return err
	}
	f.pushStats(ctx, userID)
	return nil
}

// MarkAllRead：roomID 为空表示该用户全部通知。
func (f *Fanout) MarkAllRead(ctx context.Context, userID, roomID string) error {
	if err := f.store.MarkAllRead(ctx, userID, roomID); err != nil {
		return err
	}
	f.pushStats(ctx, userID)
	return nil
}

// pushStats 让在线客户端不用轮询就能刷新未读角标。
func (f *Fanout) pushStats(ctx context.Context, userID string) {
	n, err := f.store.CountUnread(ctx, userID)
	if err != nil {
		logger.Warnf("[notify] count unread failed user=%s: %v", userID, err)
		return
	}
	f.conns.NotifyUser(userID, BuildNotificationStats(n))
}
