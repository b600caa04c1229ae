package user

import (
	"time"
)

// User 定义了用户在关系型数据库中的持久化模型。
// Gender和Goal两列存放的是fieldcrypt产生的base64(IV‖密文)blob，
// 对任何不持有密钥的读取方都是不透明的。明文绝不落库、绝不写日志。
type User struct {
	// ID 是存储层分配的代理主键，创建后不会复用。
	ID uint `gorm:"primarykey"`

	// ExternalID 是平台颁发的数字身份，唯一且一经写入不可变，
	// 是所有查询使用的自然键。唯一索引同时兜底并发重复创建。
	ExternalID int64 `gorm:"column:external_id;uniqueIndex;not null"`

	// Calculated 标记该用户是否已经完成过一次性的КБЖУ计算。
	// 只允许false→true的单向翻转。
	Calculated bool `gorm:"column:calculated;not null;default:false"`

	// Gender 密文列
	Gender string `gorm:"column:gender;type:text"`

	Age    int     `gorm:"column:age"`
	Height int     `gorm:"column:height"`
	Weight float64 `gorm:"column:weight"`

	ActivityFactor float64 `gorm:"column:activity_factor"`

	// CalculatedAt 与Calculated在同一次写入中一起落库，且只设置一次。
	CalculatedAt *time.Time `gorm:"column:calculated_at"`

	// Goal 密文列，可为空
	Goal string `gorm:"column:goal;type:text"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// Record 是仓库对外暴露的明文视图。
// 敏感字段已经解密，只存在于内存中。
type Record struct {
	ExternalID     int64
	Calculated     bool
	Gender         string
	Age            int
	Height         int
	Weight         float64
	ActivityFactor float64
	CalculatedAt   *time.Time
	Goal           string
}

// Profile 是一次确认提交携带的全部生理数据。
type Profile struct {
	Gender         string
	Age            int
	Height         int
	Weight         float64
	ActivityFactor float64
	Goal           string
}
