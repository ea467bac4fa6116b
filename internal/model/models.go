package model

import (
	"time"
)

// Todo 表示一条待办事项。
//
// 每条待办恰好属于一个用户；读、改、删都只允许属主执行。
// UpdatedAt 在每次变更时由 GORM 自动刷新。
type Todo struct {
	ID        uint      `gorm:"primaryKey" json:"id"` // 待办唯一标识
	CreatedAt time.Time `json:"createdAt"`            // 创建时间
	UpdatedAt time.Time `json:"updatedAt"`            // 更新时间

	UserID      uint   `gorm:"not null;index" json:"userId"`            // 所属用户 ID
	User        User   `gorm:"foreignKey:UserID" json:"-"`              // 所属用户
	Title       string `gorm:"type:varchar(255);not null" json:"title"` // 标题（非空）
	Description string `gorm:"type:text" json:"description,omitempty"`  // 描述（可选）
	Completed   bool   `gorm:"default:false" json:"completed"`          // 完成标记
}
