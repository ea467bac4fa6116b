package model

import "time"

// User 表示系统用户。
//
// 验证码字段成对出现：VerifyCode 与 VerifyCodeExpiresAt 要么同时有值
// （待验证状态），要么同时为空（已验证）。
type User struct {
	ID                  uint       `gorm:"primaryKey"`                    // 用户 ID
	Name                string     `gorm:"type:varchar(191);not null"`    // 显示名称
	Email               string     `gorm:"type:varchar(191);uniqueIndex"` // 邮箱（唯一）
	Password            string     `gorm:"not null" json:"-"`             // bcrypt 哈希，永不对外输出
	IsVerified          bool       `gorm:"default:false"`                 // 邮箱是否已验证
	VerifyCode          string     `gorm:"type:varchar(16)"`              // 邮箱验证码
	VerifyCodeExpiresAt *time.Time // 验证码过期时间
	VerifyCodeSentAt    *time.Time // 验证码发送时间（重发频控用）
	CreatedAt           time.Time  // 创建时间

	Todos []Todo `gorm:"foreignKey:UserID"`
}

// PublicUser 是登录响应里对外暴露的用户投影。
type PublicUser struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Public 返回不含任何凭据字段的投影。
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Email: u.Email}
}
