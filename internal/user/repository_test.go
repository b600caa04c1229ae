package user

import (
	"fmt"
	"testing"
	"time"

	"github.com/ivanfit-health/kbju-bot-backend/pkg/fieldcrypt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBSeq int

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	testDBSeq++
	dsn := fmt.Sprintf("file:repo_test_%d?mode=memory&cache=shared", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&User{}))
	return db
}

func testProfile() Profile {
	return Profile{
		Gender:         "male",
		Age:            30,
		Height:         175,
		Weight:         70,
		ActivityFactor: 1.55,
		Goal:           "weightloss",
	}
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db, fieldcrypt.DeriveKey("test-secret"))

	require.NoError(t, repo.EnsureUser(100))
	require.NoError(t, repo.EnsureUser(100))

	var count int64
	require.NoError(t, db.Model(&User{}).Where("external_id = ?", 100).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCommitRoundTripThroughEncryptedColumns(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db, fieldcrypt.DeriveKey("test-secret"))

	require.NoError(t, repo.EnsureUser(100))
	now := time.Now()
	require.NoError(t, repo.CommitCalculation(100, testProfile(), now))

	// 裸读数据库行：敏感列中只有不透明blob，没有明文
	var row User
	require.NoError(t, db.Where("external_id = ?", 100).First(&row).Error)
	assert.NotEqual(t, "male", row.Gender)
	assert.NotEqual(t, "weightloss", row.Goal)
	assert.NotEmpty(t, row.Gender)
	assert.True(t, row.Calculated)
	require.NotNil(t, row.CalculatedAt)

	// 通过仓库读取得到解密后的明文视图
	record, err := repo.GetByExternalID(100)
	require.NoError(t, err)
	assert.Equal(t, "male", record.Gender)
	assert.Equal(t, "weightloss", record.Goal)
	assert.Equal(t, 30, record.Age)
	assert.Equal(t, 175, record.Height)
	assert.InDelta(t, 70.0, record.Weight, 1e-9)
	assert.InDelta(t, 1.55, record.ActivityFactor, 1e-9)
	assert.True(t, record.Calculated)
}

func TestCommitSecondWriterLosesRace(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db, fieldcrypt.DeriveKey("test-secret"))

	require.NoError(t, repo.EnsureUser(100))
	require.NoError(t, repo.CommitCalculation(100, testProfile(), time.Now()))

	second := testProfile()
	second.Age = 99
	err := repo.CommitCalculation(100, second, time.Now())
	assert.ErrorIs(t, err, ErrAlreadyCalculated)

	// 已计算的记录被冻结，输家的数据没有覆盖任何字段
	record, getErr := repo.GetByExternalID(100)
	require.NoError(t, getErr)
	assert.Equal(t, 30, record.Age)
}

func TestCommitUnknownUser(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db, fieldcrypt.DeriveKey("test-secret"))

	err := repo.CommitCalculation(404, testProfile(), time.Now())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGetUnknownUser(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db, fieldcrypt.DeriveKey("test-secret"))

	_, err := repo.GetByExternalID(404)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestIsCalculatedTransitions(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db, fieldcrypt.DeriveKey("test-secret"))

	require.NoError(t, repo.EnsureUser(100))
	calculated, err := repo.IsCalculated(100)
	require.NoError(t, err)
	assert.False(t, calculated)

	require.NoError(t, repo.CommitCalculation(100, testProfile(), time.Now()))
	calculated, err = repo.IsCalculated(100)
	require.NoError(t, err)
	assert.True(t, calculated)
}

func TestCorruptCiphertextSurfacesDecryptError(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db, fieldcrypt.DeriveKey("test-secret"))

	require.NoError(t, repo.EnsureUser(100))
	require.NoError(t, repo.CommitCalculation(100, testProfile(), time.Now()))

	// 直接破坏密文列
	require.NoError(t, db.Model(&User{}).Where("external_id = ?", 100).
		Update("gender", "not-a-valid-blob").Error)

	_, err := repo.GetByExternalID(100)
	require.Error(t, err)
	assert.True(t, fieldcrypt.IsDecryptError(err))
	assert.NotErrorIs(t, err, ErrUserNotFound)
}

func TestKeyMismatchSurfacesDecryptError(t *testing.T) {
	db := openTestDB(t)
	writer := NewRepository(db, fieldcrypt.DeriveKey("key-one"))
	reader := NewRepository(db, fieldcrypt.DeriveKey("key-two"))

	require.NoError(t, writer.EnsureUser(100))
	require.NoError(t, writer.CommitCalculation(100, testProfile(), time.Now()))

	record, err := reader.GetByExternalID(100)
	// 密钥轮换而数据未重加密：要么解密错误，要么得到的绝不是原明文
	if err != nil {
		assert.True(t, fieldcrypt.IsDecryptError(err))
	} else {
		assert.NotEqual(t, "male", record.Gender)
	}
}
