package model

import "time"

// UserStatus 用户状态
const (
	UserStatusNormal   = 0 // 正常
	UserStatusDisabled = 1 // 禁用
)

// User 用户实体
type User struct {
	ID           int64     `json:"id,string" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	Avatar       string    `json:"avatar" db:"avatar"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Roles        []string  `json:"roles" db:"roles"`
	Permissions  []string  `json:"permissions" db:"permissions"`
	Locale       string    `json:"locale" db:"locale"`
	Status       int       `json:"status" db:"status"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// Enabled 是否可以登录
func (u *User) Enabled() bool {
	return u.Status == UserStatusNormal
}

// UserBrief 聊天中展示的用户信息
type UserBrief struct {
	ID     int64  `json:"id,string"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Brief 转换为展示信息
func (u *User) Brief() UserBrief {
	return UserBrief{ID: u.ID, Name: u.Name, Avatar: u.Avatar}
}
