package model

import "go.mongodb.org/mongo-driver/bson/primitive"

const (
	NotificationTableName = "notifications"

	NotifyTypeMessage = "new_message"
	NotifyTypeSystem  = "system"
)

// NotificationModel：一个事件对一个接收者的通知记录。
// 落库与实时投递互相独立：落库失败不阻断实时投递，反之亦然。
type NotificationModel struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	RecipientID string             `bson:"recipient_id"`

	Type     string `bson:"type"`
	Title    string `bson:"title"`
	Body     string `bson:"body"`
	SenderID string `bson:"sender_id,omitempty"`
	RoomID   string `bson:"room_id,omitempty"`
	// 关联的消息 server_id，客户端用于跳转定位
	RefID string `bson:"ref_id,omitempty"`

	IsRead     bool  `bson:"is_read"`
	CreateTime int64 `bson:"create_time"` // Unix ms
	ReadTime   int64 `bson:"read_time,omitempty"`
}

func (NotificationModel) TableName() string { return NotificationTableName }
