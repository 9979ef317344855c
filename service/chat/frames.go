package chat

import (
	"encoding/json"
	"strings"
	"time"

	"RoomChat/module/chat/model"
	"RoomChat/tools/decode"
	"RoomChat/tools/errs"
)

// ===== 入站帧 =====

// FrameType 是入站帧类型的封闭枚举；新增帧类型必须同时扩展
// parseFrameType 与 dispatch 的 switch。
type FrameType int

const (
	FrameUnknown FrameType = iota
	FrameAuth
	FrameChatMessage
	FramePing
	FrameTyping
	FramePresence
	FrameReadReceipt
)

func parseFrameType(s string) FrameType {
	switch s {
	case "auth":
		return FrameAuth
	case "chat_message":
		return FrameChatMessage
	case "ping":
		return FramePing
	case "typing":
		return FrameTyping
	case "presence":
		return FramePresence
	case "read_receipt":
		return FrameReadReceipt
	default:
		return FrameUnknown
	}
}

// InboundFrame：一帧一个 JSON 对象，type 字段做路由判别。
type InboundFrame struct {
	Type    FrameType
	RawType string
	Fields  map[string]any
}

// ParseInbound 解析入站帧。JSON 不合法或缺 type 字段返回
// ErrFrameMalformed；type 未知由调用方按 FrameUnknown 处理。
func ParseInbound(raw []byte) (*InboundFrame, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errs.ErrFrameMalformed.WithDetail(err.Error())
	}
	t, err := decode.ReadString(m, "type")
	if err != nil {
		return nil, errs.ErrFrameMalformed.WithDetail("missing type")
	}
	return &InboundFrame{
		Type:    parseFrameType(t),
		RawType: t,
		Fields:  m,
	}, nil
}

// ——各帧类型的业务负载（json tag 供 mapstructure 解码）——

type AuthPayload struct {
	Token string `json:"token"`
}

type ChatMessageIn struct {
	Content     string            `json:"content"`
	MessageType string            `json:"message_type"`
	ReplyTo     string            `json:"reply_to"`
	TempID      string            `json:"temp_id"`
	Metadata    map[string]string `json:"metadata"`
}

type ReadReceiptIn struct {
	NotificationID string `json:"notification_id"`
	RoomID         string `json:"room_id"`
	All            bool   `json:"all"`
}

func (f *InboundFrame) AuthPayload() (*AuthPayload, error) {
	return decode.DecodeMap[AuthPayload](f.Fields)
}

func (f *InboundFrame) ChatMessage() (*ChatMessageIn, error) {
	return decode.DecodeMap[ChatMessageIn](f.Fields)
}

func (f *InboundFrame) ReadReceipt() (*ReadReceiptIn, error) {
	return decode.DecodeMap[ReadReceiptIn](f.Fields)
}

// ===== 内容校验 =====

const (
	maxTextLen       = 2000
	maxAttachmentLen = 6000 // 附件类内容是 URL/元数据，给更高上限
)

// ValidateContent 校验聊天内容；返回规整后的内容。
func ValidateContent(content, msgType string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", errs.ErrContentEmpty
	}
	limit := maxTextLen
	switch msgType {
	case model.MsgTypeImage, model.MsgTypeFile:
		limit = maxAttachmentLen
	}
	if len(trimmed) > limit {
		return "", errs.ErrContentTooLong
	}
	return trimmed, nil
}

// ===== 出站帧 =====
// 出站帧固定带 type 与服务端 timestamp（Unix ms）。

type ChatMessageOut struct {
	Type       string            `json:"type"`
	ID         string            `json:"id"`
	RoomID     string            `json:"room_id"`
	SenderID   string            `json:"sender_id"`
	SenderName string            `json:"sender_name"`
	MsgType    string            `json:"message_type"`
	Content    string            `json:"content"`
	ReplyTo    string            `json:"reply_to,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	TempID     string            `json:"temp_id,omitempty"`
	Timestamp  int64             `json:"timestamp"`
}

func BuildChatMessage(m *model.MessageModel, tempID string) *ChatMessageOut {
	return &ChatMessageOut{
		Type:       "chat_message",
		ID:         m.ServerID,
		RoomID:     m.RoomID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		MsgType:    m.MsgType,
		Content:    m.Content,
		ReplyTo:    m.ReplyTo,
		Metadata:   m.Metadata,
		TempID:     tempID,
		Timestamp:  m.CreateTime,
	}
}

type ErrorFrame struct {
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	TempID    string `json:"temp_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// BuildError 带回客户端相关性 id，客户端据此对账乐观条目。
func BuildError(e *errs.CodeError, tempID string) *ErrorFrame {
	return &ErrorFrame{
		Type:      "error",
		Code:      e.Code,
		Msg:       e.Msg,
		TempID:    tempID,
		Timestamp: time.Now().UnixMilli(),
	}
}

type PongFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func BuildPong() *PongFrame {
	return &PongFrame{Type: "pong", Timestamp: time.Now().UnixMilli()}
}

type TypingFrame struct {
	Type      string `json:"type"`
	RoomID    string `json:"room_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Timestamp int64  `json:"timestamp"`
}

func BuildTyping(roomID string, u UserInfo) *TypingFrame {
	return &TypingFrame{
		Type:      "typing",
		RoomID:    roomID,
		UserID:    u.UserID,
		UserName:  u.Name,
		Timestamp: time.Now().UnixMilli(),
	}
}

type RoomUsersFrame struct {
	Type      string     `json:"type"`
	RoomID    string     `json:"room_id"`
	Users     []UserInfo `json:"users"`
	Timestamp int64      `json:"timestamp"`
}

func BuildRoomUsers(roomID string, users []UserInfo) *RoomUsersFrame {
	return &RoomUsersFrame{
		Type:      "room_users",
		RoomID:    roomID,
		Users:     users,
		Timestamp: time.Now().UnixMilli(),
	}
}

type PresenceEventFrame struct {
	Type      string   `json:"type"` // user_joined / user_left
	RoomID    string   `json:"room_id"`
	User      UserInfo `json:"user"`
	Timestamp int64    `json:"timestamp"`
}

func BuildPresenceEvent(event, roomID string, u UserInfo) *PresenceEventFrame {
	return &PresenceEventFrame{
		Type:      event,
		RoomID:    roomID,
		User:      u,
		Timestamp: time.Now().UnixMilli(),
	}
}

type NotificationFrame struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	SenderID  string `json:"sender_id,omitempty"`
	RoomID    string `json:"room_id,omitempty"`
	RefID     string `json:"ref_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func BuildNotification(id string, n *model.NotificationModel) *NotificationFrame {
	return &NotificationFrame{
		Type:      "notification",
		ID:        id,
		Kind:      n.Type,
		Title:     n.Title,
		Body:      n.Body,
		SenderID:  n.SenderID,
		RoomID:    n.RoomID,
		RefID:     n.RefID,
		Timestamp: time.Now().UnixMilli(),
	}
}

type NotificationStatsFrame struct {
	Type      string `json:"type"`
	Unread    int64  `json:"unread"`
	Timestamp int64  `json:"timestamp"`
}

func BuildNotificationStats(unread int64) *NotificationStatsFrame {
	return &NotificationStatsFrame{
		Type:      "notification_stats",
		Unread:    unread,
		Timestamp: time.Now().UnixMilli(),
	}
}
