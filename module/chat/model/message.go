package model

import "go.mongodb.org/mongo-driver/bson/primitive"

const (
	MessageTableName = "messages"

	// 消息内容类型（业务枚举）
	MsgTypeText   = "text"
	MsgTypeImage  = "image"
	MsgTypeFile   = "file"
	MsgTypeSystem = "system"
)

// MessageModel 是一条落库消息的主干数据。
type MessageModel struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	ServerID string             `bson:"server_id"` // 服务端分配的消息ID（snowflake）
	RoomID   string             `bson:"room_id"`
	SenderID string             `bson:"sender_id"`
	// 发送者昵称快照，避免历史记录反查用户表
	SenderName string `bson:"sender_name"`

	MsgType string `bson:"msg_type"` // text/image/file/system
	Content string `bson:"content"`
	ReplyTo string `bson:"reply_to,omitempty"` // 被回复消息的 server_id

	Metadata map[string]string `bson:"metadata,omitempty"`

	CreateTime int64 `bson:"create_time"` // Unix ms
}

func (MessageModel) TableName() string { return MessageTableName }
