package store

import (
	"context"
	"time"

	"RoomChat/module/chat/model"
	"RoomChat/tools/errs"

	pkgerr "github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func primitiveObjectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, errs.ErrRecordNotFound.WithDetail("bad id " + id)
	}
	return oid, nil
}

// Store 聚合网关消费的几个集合。网关对这些集合只做
// 简单的 create/read/update，不承担历史相关的复杂查询。
type Store struct {
	MsgColl    *mongo.Collection
	RoomColl   *mongo.Collection
	UserColl   *mongo.Collection
	NotifyColl *mongo.Collection
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		MsgColl:    db.Collection(model.MessageTableName),
		RoomColl:   db.Collection(model.RoomTableName),
		UserColl:   db.Collection(model.UserTableName),
		NotifyColl: db.Collection(model.NotificationTableName),
	}
}

// ===== messages =====

func (s *Store) InsertMessage(ctx context.Context, m *model.MessageModel) error {
	if m.CreateTime == 0 {
		m.CreateTime = time.Now().UnixMilli()
	}
	_, err := s.MsgColl.InsertOne(ctx, m)
	return pkgerr.Wrap(err, "insert message")
}

// RecentMessages 返回房间最近 limit 条消息，按时间升序。
func (s *Store) RecentMessages(ctx context.Context, roomID string, limit int64) ([]*model.MessageModel, error) {
	if limit <= 0 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "create_time", Value: -1}}).
		SetLimit(limit)
	cur, err := s.MsgColl.Find(ctx, bson.M{"room_id": roomID}, opts)
	if err != nil {
		return nil, pkgerr.Wrap(err, "find recent messages")
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []*model.MessageModel
	if err := cur.All(ctx, &out); err != nil {
		return nil, pkgerr.Wrap(err, "decode recent messages")
	}
	// 倒序查出来的翻回升序
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ===== rooms / users =====

func (s *Store) GetRoom(ctx context.Context, roomID string) (*model.RoomModel, error) {
	var room model.RoomModel
	err := s.RoomColl.FindOne(ctx, bson.M{"room_id": roomID}).Decode(&room)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrRecordNotFound.WithDetail("room " + roomID)
	}
	if err != nil {
		return nil, pkgerr.Wrap(err, "find room")
	}
	return &room, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*model.UserModel, error) {
	var user model.UserModel
	err := s.UserColl.FindOne(ctx, bson.M{"user_id": userID}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrRecordNotFound.WithDetail("user " + userID)
	}
	if err != nil {
		return nil, pkgerr.Wrap(err, "find user")
	}
	return &user, nil
}

// ===== notifications =====

// InsertMany 批量落通知，返回新记录的 hex id。
func (s *Store) InsertMany(ctx context.Context, ns []*model.NotificationModel) ([]string, error) {
	if len(ns) == 0 {
		return nil, nil
	}
	now := time.Now().UnixMilli()
	docs := make([]interface{}, 0, len(ns))
	for _, n := range ns {
		if n.CreateTime == 0 {
			n.CreateTime = now
		}
		docs = append(docs, n)
	}
	res, err := s.NotifyColl.InsertMany(ctx, docs)
	if err != nil {
		return nil, pkgerr.Wrap(err, "insert notifications")
	}
	ids := make([]string, 0, len(res.InsertedIDs))
	for _, id := range res.InsertedIDs {
		if oid, ok := id.(interface{ Hex() string }); ok {
			ids = append(ids, oid.Hex())
		}
	}
	return ids, nil
}

func (s *Store) MarkRead(ctx context.Context, userID, id string) error {
	oid, err := primitiveObjectID(id)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	res, err := s.NotifyColl.UpdateOne(ctx,
		bson.M{"_id": oid, "recipient_id": userID},
		bson.M{"$set": bson.M{"is_read": true, "read_time": now}},
	)
	if err != nil {
		return pkgerr.Wrap(err, "mark notification read")
	}
	if res.MatchedCount == 0 {
		return errs.ErrRecordNotFound.WithDetail("notification " + id)
	}
	return nil
}

// MarkAllRead 标记某用户全部（或某房间内全部）通知为已读。
func (s *Store) MarkAllRead(ctx context.Context, userID, roomID string) error {
	filter := bson.M{"recipient_id": userID, "is_read": false}
	if roomID != "" {
		filter["room_id"] = roomID
	}
	now := time.Now().UnixMilli()
	_, err := s.NotifyColl.UpdateMany(ctx, filter,
		bson.M{"$set": bson.M{"is_read": true, "read_time": now}},
	)
	return pkgerr.Wrap(err, "mark all notifications read")
}

func (s *Store) CountUnread(ctx context.Context, userID string) (int64, error) {
	n, err := s.NotifyColl.CountDocuments(ctx, bson.M{"recipient_id": userID, "is_read": false})
	return n, pkgerr.Wrap(err, "count unread notifications")
}
