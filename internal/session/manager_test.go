package session

import (
	"sync"
	"testing"
	"time"

	"github.com/ivanfit-health/kbju-bot-backend/internal/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRepo 是user.Repository的内存实现，用于隔离测试提交护栏。
// 它完整复刻条件写入的竞争裁决语义，并统计实际发生的持久写入次数。
type memoryRepo struct {
	mu         sync.Mutex
	rows       map[int64]*user.Record
	writeCount int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[int64]*user.Record)}
}

func (r *memoryRepo) EnsureUser(externalID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[externalID]; !ok {
		r.rows[externalID] = &user.Record{ExternalID: externalID}
	}
	return nil
}

func (r *memoryRepo) GetByExternalID(externalID int64) (*user.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[externalID]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	copied := *row
	return &copied, nil
}

func (r *memoryRepo) IsCalculated(externalID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[externalID]
	if !ok {
		return false, user.ErrUserNotFound
	}
	return row.Calculated, nil
}

func (r *memoryRepo) CommitCalculation(externalID int64, profile user.Profile, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[externalID]
	if !ok {
		return user.ErrUserNotFound
	}
	if row.Calculated {
		return user.ErrAlreadyCalculated
	}
	row.Gender = profile.Gender
	row.Age = profile.Age
	row.Height = profile.Height
	row.Weight = profile.Weight
	row.ActivityFactor = profile.ActivityFactor
	row.Goal = profile.Goal
	row.Calculated = true
	row.CalculatedAt = &now
	r.writeCount++
	return nil
}

func (r *memoryRepo) writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeCount
}

func driveToConfirm(t *testing.T, m *Manager, id int64) {
	t.Helper()
	_, err := m.StartCalculation(id)
	require.NoError(t, err)
	for _, answer := range []string{"male", "30", "175", "70", "medium", "weightloss"} {
		_, err := m.SubmitAnswer(id, answer)
		require.NoError(t, err)
	}
}

func TestConfirmCommitsOnce(t *testing.T) {
	repo := newMemoryRepo()
	m := NewManager(repo)

	driveToConfirm(t, m, 42)

	res, err := m.Confirm(42)
	require.NoError(t, err)
	assert.False(t, res.AlreadyCalculated)
	assert.Equal(t, 4, res.Result.MealCount)
	assert.InDelta(t, 2687.266, res.Result.Energy, 1e-6)
	assert.Equal(t, 1, repo.writes())

	record, err := repo.GetByExternalID(42)
	require.NoError(t, err)
	assert.True(t, record.Calculated)
	require.NotNil(t, record.CalculatedAt)
	assert.Equal(t, "male", record.Gender)
}

func TestConfirmIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	m := NewManager(repo)

	driveToConfirm(t, m, 42)
	_, err := m.Confirm(42)
	require.NoError(t, err)

	// 后续的confirm一律得到"已计算"结局，且不再发生持久写入
	for i := 0; i < 2; i++ {
		res, err := m.Confirm(42)
		require.NoError(t, err)
		assert.True(t, res.AlreadyCalculated)
	}
	assert.Equal(t, 1, repo.writes())
}

func TestConcurrentConfirmSingleWrite(t *testing.T) {
	repo := newMemoryRepo()

	// 两个Manager共享同一个持久存储，模拟两条并发的确认路径
	// 绕开同一Manager的每用户锁，迫使仲裁落到条件写入上
	m1 := NewManager(repo)
	m2 := NewManager(repo)

	driveToConfirm(t, m1, 7)
	driveToConfirm(t, m2, 7)

	var wg sync.WaitGroup
	results := make([]CommitResult, 2)
	errs := make([]error, 2)
	for i, m := range []*Manager{m1, m2} {
		wg.Add(1)
		go func(i int, m *Manager) {
			defer wg.Done()
			results[i], errs[i] = m.Confirm(7)
		}(i, m)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// 恰好一方真正落库，另一方收到"已计算"结局
	winners := 0
	for _, res := range results {
		if !res.AlreadyCalculated {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, repo.writes())

	calculated, err := repo.IsCalculated(7)
	require.NoError(t, err)
	assert.True(t, calculated)
}

func TestStartAfterCalculatedShortCircuits(t *testing.T) {
	repo := newMemoryRepo()
	m := NewManager(repo)

	driveToConfirm(t, m, 9)
	_, err := m.Confirm(9)
	require.NoError(t, err)

	_, err = m.StartCalculation(9)
	assert.ErrorIs(t, err, ErrAlreadyCalculated)

	// 任何后续事件同样短路为"已计算"
	_, err = m.SubmitAnswer(9, "30")
	assert.ErrorIs(t, err, ErrAlreadyCalculated)

	vm, err := m.View(9)
	require.NoError(t, err)
	assert.Equal(t, "committed", vm.Step)
}

func TestConfirmBeforeAllAnswersRejected(t *testing.T) {
	repo := newMemoryRepo()
	m := NewManager(repo)

	_, err := m.StartCalculation(5)
	require.NoError(t, err)
	_, err = m.SubmitAnswer(5, "female")
	require.NoError(t, err)

	_, err = m.Confirm(5)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 0, repo.writes())
}

func TestAnswerWithoutSession(t *testing.T) {
	repo := newMemoryRepo()
	m := NewManager(repo)

	_, err := m.SubmitAnswer(1, "male")
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestSessionsAreIndependentAcrossUsers(t *testing.T) {
	repo := newMemoryRepo()
	m := NewManager(repo)

	driveToConfirm(t, m, 1)

	_, err := m.StartCalculation(2)
	require.NoError(t, err)
	vm, err := m.SubmitAnswer(2, "female")
	require.NoError(t, err)
	assert.Equal(t, "await_age", vm.Step)

	// 用户1仍停在确认页
	vm1, err := m.View(1)
	require.NoError(t, err)
	assert.Equal(t, "confirmation", vm1.Step)
}
