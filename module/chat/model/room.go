package model

const RoomTableName = "rooms"

// RoomModel：房间与成员集合（成员关系的权威来源；
// 实时在线状态由网关的连接表派生，不落这里）。
type RoomModel struct {
	RoomID    string   `bson:"room_id"`
	Name      string   `bson:"name"`
	OwnerID   string   `bson:"owner_id"`
	MemberIDs []string `bson:"member_ids"`
	IsPublic  bool     `bson:"is_public"`

	CreateTime int64 `bson:"create_time"` // Unix ms
}

func (RoomModel) TableName() string { return RoomTableName }

// HasMember 判断用户是否是房间成员。
func (r *RoomModel) HasMember(userID string) bool {
	for _, id := range r.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}
