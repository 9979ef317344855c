package model

const UserTableName = "users"

// UserModel：用户展示属性（网关只读）。
type UserModel struct {
	UserID    string `bson:"user_id"`
	Name      string `bson:"name"`
	AvatarURL string `bson:"avatar_url"`

	CreateTime int64 `bson:"create_time"` // Unix ms
}

func (UserModel) TableName() string { return UserTableName }
