package chat

import (
	"context"
	"time"
	"unicode/utf8"

	"RoomChat/logger"
	"RoomChat/module/chat/model"
	"RoomChat/tools/errs"
	"RoomChat/tools/ids"
)

// session：一条 Open 态连接的会话上下文。帧在本会话内按到达顺序
// 串行处理；不同会话互不影响。
type session struct {
	conn *Connection
	user UserInfo
	room *model.RoomModel
}

// dispatch 按帧类型路由。未知/意外类型回结构化错误帧，连接保持。
func (s *Server) dispatch(ctx context.Context, sess *session, f *InboundFrame) {
	switch f.Type {
	case FrameChatMessage:
		s.handleChat(ctx, sess, f)
	case FramePing:
		s.sendTo(sess, BuildPong())
	case FrameTyping:
		s.broadcast(sess.conn.RoomID, BuildTyping(sess.conn.RoomID, sess.user), sess.user.UserID)
	case FramePresence:
		s.sendTo(sess, BuildRoomUsers(sess.conn.RoomID, s.conns.RoomUsers(sess.conn.RoomID)))
	case FrameReadReceipt:
		s.handleReadReceipt(ctx, sess, f)
	case FrameAuth:
		// 已经 Open，重复 auth 不换身份
		s.sendTo(sess, BuildError(errs.ErrUnknownFrameType.WithDetail("already authenticated"), ""))
	case FrameUnknown:
		s.sendTo(sess, BuildError(errs.ErrUnknownFrameType.WithDetail(f.RawType), ""))
	}
}

func (s *Server) sendTo(sess *session, frame any) {
	_ = s.conns.SendToUser(sess.user.UserID, sess.conn.RoomID, frame)
}

// handleChat：校验 → 落库 → 广播规范形态（含发送者本人，其副本
// 回带 temp_id）→ 异步尽力通知其他成员。
func (s *Server) handleChat(ctx context.Context, sess *session, f *InboundFrame) {
	in, err := f.ChatMessage()
	if err != nil {
		s.sendTo(sess, BuildError(errs.ErrFrameMalformed.WithDetail(err.Error()), ""))
		return
	}
	if in.MessageType == "" {
		in.MessageType = model.MsgTypeText
	}

	content, err := ValidateContent(in.Content, in.MessageType)
	if err != nil {
		if ce := errs.AsCodeError(err); ce != nil {
			s.sendTo(sess, BuildError(ce, in.TempID))
		}
		return
	}

	msg := &model.MessageModel{
		ServerID:   ids.GenerateString(),
		RoomID:     sess.conn.RoomID,
		SenderID:   sess.user.UserID,
		SenderName: sess.user.Name,
		MsgType:    in.MessageType,
		Content:    content,
		ReplyTo:    in.ReplyTo,
		Metadata:   in.Metadata,
		CreateTime: time.Now().UnixMilli(),
	}

	pctx, cancel := context.WithTimeout(ctx, s.conf.OpTimeout)
	err = s.msgs.InsertMessage(pctx, msg)
	cancel()
	if err != nil {
		logger.Errorf("[chat] persist failed room=%s sender=%s: %v", msg.RoomID, msg.SenderID, err)
		s.sendTo(sess, BuildError(errs.NewCodeError(4002, "message not saved"), in.TempID))
		return
	}

	// 发送者的副本回带 temp_id，其余成员收规范形态
	s.sendTo(sess, BuildChatMessage(msg, in.TempID))
	s.broadcast(msg.RoomID, BuildChatMessage(msg, ""), sess.user.UserID)

	// 通知扇出不阻塞广播，失败只记日志
	go s.notifyRoomMembers(sess, msg)
}

func (s *Server) notifyRoomMembers(sess *session, msg *model.MessageModel) {
	ctx, cancel := context.WithTimeout(context.Background(), s.conf.OpTimeout)
	defer cancel()

	room := sess.room
	if room == nil {
		var err error
		room, err = s.rooms.GetRoom(ctx, msg.RoomID)
		if err != nil {
			logger.Warnf("[chat] notify skipped, room lookup failed room=%s: %v", msg.RoomID, err)
			return
		}
	}

	recipients := make([]string, 0, len(room.MemberIDs))
	for _, uid := range room.MemberIDs {
		if uid != msg.SenderID {
			recipients = append(recipients, uid)
		}
	}

	body := truncateBody(msg.Content, 120)
	s.fanout.Notify(ctx, recipients, NotifyPayload{
		Type:     model.NotifyTypeMessage,
		Title:    msg.SenderName,
		Body:     body,
		SenderID: msg.SenderID,
		RoomID:   msg.RoomID,
		RefID:    msg.ServerID,
	})
}

// truncateBody 在 rune 边界上截断预览，不产出半个 UTF-8 序列。
func truncateBody(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func (s *Server) handleReadReceipt(ctx context.Context, sess *session, f *InboundFrame) {
	in, err := f.ReadReceipt()
	if err != nil {
		s.sendTo(sess, BuildError(errs.ErrFrameMalformed.WithDetail(err.Error()), ""))
		return
	}

	octx, cancel := context.WithTimeout(ctx, s.conf.OpTimeout)
	defer cancel()

	switch {
	case in.All:
		err = s.fanout.MarkAllRead(octx, sess.user.UserID, "")
	case in.RoomID != "":
		err = s.fanout.MarkAllRead(octx, sess.user.UserID, in.RoomID)
	case in.NotificationID != "":
		err = s.fanout.MarkRead(octx, sess.user.UserID, in.NotificationID)
	default:
		s.sendTo(sess, BuildError(errs.ErrFrameMalformed.WithDetail("read_receipt needs notification_id, room_id or all"), ""))
		return
	}
	if err != nil {
		if ce := errs.AsCodeError(err); ce != nil {
			s.sendTo(sess, BuildError(ce, ""))
			return
		}
		logger.Warnf("[chat] read receipt failed user=%s: %v", sess.user.UserID, err)
	}
}
