package user

import (
	"errors"
	"fmt"
	"time"

	"github.com/ivanfit-health/kbju-bot-backend/pkg/fieldcrypt"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound 表示请求的外部ID在users表中不存在。
	ErrUserNotFound = errors.New("用户不存在")

	// ErrAlreadyCalculated 表示计算结果已经落库，条件更新没有命中任何行。
	// 这是并发确认竞争中输掉一方的正常结局，不是故障。
	ErrAlreadyCalculated = errors.New("该用户的计算结果已存在")
)

// Repository 定义了用户记录的持久化访问接口。
// 敏感列的加解密发生在实现内部的持久化边界上，调用方只接触明文Record。
type Repository interface {
	// EnsureUser 确保外部ID对应的行存在；已存在时什么都不做。
	EnsureUser(externalID int64) error

	// GetByExternalID 读取并解密用户记录。
	// 解密失败返回*fieldcrypt.DecryptError，必须与"记录不存在"区分。
	GetByExternalID(externalID int64) (*Record, error)

	// IsCalculated 查询一次性计算标记。
	IsCalculated(externalID int64) (bool, error)

	// CommitCalculation 在一次写入中落库全部生理字段、calculated和calculated_at。
	// 以calculated = false为条件做更新：竞争中后到的写入方收到ErrAlreadyCalculated。
	CommitCalculation(externalID int64, profile Profile, now time.Time) error
}

// gormRepository 是Repository基于GORM的实现。
// 它持有加密密钥，密钥既不落库也不写日志。
type gormRepository struct {
	db  *gorm.DB
	key []byte
}

// NewRepository 构造仓库实例。存储句柄和密钥都由调用方显式传入。
func NewRepository(db *gorm.DB, key []byte) Repository {
	return &gormRepository{db: db, key: key}
}

func (r *gormRepository) EnsureUser(externalID int64) error {
	err := r.db.Create(&User{ExternalID: externalID}).Error
	if err == nil {
		return nil
	}

	// 唯一索引兜底：并发创建时后到者会违反约束，此时回读确认行存在即可，
	// 绝不覆盖已有记录。
	var count int64
	if countErr := r.db.Model(&User{}).Where("external_id = ?", externalID).Count(&count).Error; countErr != nil {
		return fmt.Errorf("创建用户失败: %w", err)
	}
	if count > 0 {
		return nil
	}
	return fmt.Errorf("创建用户失败: %w", err)
}

func (r *gormRepository) GetByExternalID(externalID int64) (*Record, error) {
	var row User
	if err := r.db.Where("external_id = ?", externalID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("读取用户记录失败: %w", err)
	}

	// 在持久化边界上显式解密。解密失败原样上抛，
	// 绝不把损坏的密文映射成空字符串。
	gender, err := fieldcrypt.Decrypt(row.Gender, r.key)
	if err != nil {
		return nil, err
	}
	goal, err := fieldcrypt.Decrypt(row.Goal, r.key)
	if err != nil {
		return nil, err
	}

	return &Record{
		ExternalID:     row.ExternalID,
		Calculated:     row.Calculated,
		Gender:         gender,
		Age:            row.Age,
		Height:         row.Height,
		Weight:         row.Weight,
		ActivityFactor: row.ActivityFactor,
		CalculatedAt:   row.CalculatedAt,
		Goal:           goal,
	}, nil
}

func (r *gormRepository) IsCalculated(externalID int64) (bool, error) {
	var row User
	if err := r.db.Select("calculated").Where("external_id = ?", externalID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrUserNotFound
		}
		return false, fmt.Errorf("查询计算标记失败: %w", err)
	}
	return row.Calculated, nil
}

func (r *gormRepository) CommitCalculation(externalID int64, profile Profile, now time.Time) error {
	// 先加密，加密失败时不触碰数据库。
	genderBlob, err := fieldcrypt.Encrypt(profile.Gender, r.key)
	if err != nil {
		return fmt.Errorf("加密性别字段失败: %w", err)
	}
	goalBlob, err := fieldcrypt.Encrypt(profile.Goal, r.key)
	if err != nil {
		return fmt.Errorf("加密目标字段失败: %w", err)
	}

	// 单条条件UPDATE：所有字段与calculated、calculated_at一起落库。
	// WHERE calculated = false 保证两个并发提交只有一个能命中行，
	// 输家通过RowsAffected == 0得到ErrAlreadyCalculated。
	result := r.db.Model(&User{}).
		Where("external_id = ? AND calculated = ?", externalID, false).
		Updates(map[string]interface{}{
			"gender":          genderBlob,
			"age":             profile.Age,
			"height":          profile.Height,
			"weight":          profile.Weight,
			"activity_factor": profile.ActivityFactor,
			"goal":            goalBlob,
			"calculated":      true,
			"calculated_at":   now,
		})
	if result.Error != nil {
		return fmt.Errorf("写入计算结果失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// 行不存在或已计算；区分两种情况
		var count int64
		if err := r.db.Model(&User{}).Where("external_id = ?", externalID).Count(&count).Error; err != nil {
			return fmt.Errorf("写入计算结果失败: %w", err)
		}
		if count == 0 {
			return ErrUserNotFound
		}
		return ErrAlreadyCalculated
	}
	return nil
}
