package chat

import (
	"context"

	"RoomChat/module/chat/model"
)

// 持久化协作方。网关只消费这些接口；Mongo 实现在 module/chat/store。

type MessageStore interface {
	InsertMessage(ctx context.Context, m *model.MessageModel) error
	RecentMessages(ctx context.Context, roomID string, limit int64) ([]*model.MessageModel, error)
}

type RoomStore interface {
	GetRoom(ctx context.Context, roomID string) (*model.RoomModel, error)
}

type UserStore interface {
	GetUser(ctx context.Context, userID string) (*model.UserModel, error)
}

type NotificationStore interface {
	InsertMany(ctx context.Context, ns []*model.NotificationModel) ([]string, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID, roomID string) error
	CountUnread(ctx context.Context, userID string) (int64, error)
}

// Stores 打包上面四个接口，module/chat/store.Store 全部满足。
type Stores interface {
	MessageStore
	RoomStore
	UserStore
	NotificationStore
}
