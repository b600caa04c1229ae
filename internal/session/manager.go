package session

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ivanfit-health/kbju-bot-backend/internal/calc"
	"github.com/ivanfit-health/kbju-bot-backend/internal/user"
)

// ErrNoActiveSession 表示该用户当前没有进行中的会话。
var ErrNoActiveSession = errors.New("нет активного диалога")

// ErrAlreadyCalculated 是持久层一次性标记已置位时的统一结局。
// 对用户而言这不是错误，适配层把它渲染成固定的"已计算"提示。
var ErrAlreadyCalculated = user.ErrAlreadyCalculated

// CommitResult 是一次confirm动作的结局。
type CommitResult struct {
	// AlreadyCalculated 为true时表示本次没有发生计算和写入，
	// 该用户的结果早已落库（包括并发竞争中输掉的一方）。
	AlreadyCalculated bool
	Result            calc.Result
	Profile           user.Profile
}

// slot 是单个用户的会话槽位。
// slot.mu 保证同一用户的事件严格串行处理；不同用户完全并行。
type slot struct {
	mu   sync.Mutex
	sess *Session
}

// Manager 是每用户会话的控制器：持有进行中的会话、
// 驱动状态机、并在确认时执行带幂等护栏的提交序列。
type Manager struct {
	repo user.Repository

	mu    sync.Mutex
	slots map[int64]*slot
}

// NewManager 构造会话管理器。
func NewManager(repo user.Repository) *Manager {
	return &Manager{
		repo:  repo,
		slots: make(map[int64]*slot),
	}
}

// acquire 取得（必要时创建）用户的槽位。
func (m *Manager) acquire(externalID int64) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[externalID]
	if !ok {
		s = &slot{}
		m.slots[externalID] = s
	}
	return s
}

// StartCalculation 为用户开启一个新会话。
// 持久记录已计算的用户直接收到ErrAlreadyCalculated，不会进入状态机。
func (m *Manager) StartCalculation(externalID int64) (ViewModel, error) {
	sl := m.acquire(externalID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.sess != nil && sl.sess.Step == StepCommitted {
		return ViewModel{}, ErrAlreadyCalculated
	}

	if err := m.repo.EnsureUser(externalID); err != nil {
		return ViewModel{}, err
	}
	calculated, err := m.repo.IsCalculated(externalID)
	if err != nil {
		return ViewModel{}, err
	}
	if calculated {
		return ViewModel{}, ErrAlreadyCalculated
	}

	// 重新开始会覆盖未完成的旧会话：未提交的数据本来就没有落库
	sl.sess = NewSession(externalID)
	log.Printf("用户%d开始КБЖУ对话", externalID)
	return sl.sess.View(), nil
}

// SubmitAnswer 向用户当前的Await状态投递一个回答。
func (m *Manager) SubmitAnswer(externalID int64, raw string) (ViewModel, error) {
	sl := m.acquire(externalID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sess, err := m.activeSession(sl, externalID)
	if err != nil {
		return ViewModel{}, err
	}
	if err := sess.SubmitAnswer(raw); err != nil {
		return sess.View(), err
	}
	return sess.View(), nil
}

// Skip 投递显式跳过动作。
func (m *Manager) Skip(externalID int64) (ViewModel, error) {
	sl := m.acquire(externalID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sess, err := m.activeSession(sl, externalID)
	if err != nil {
		return ViewModel{}, err
	}
	if err := sess.Skip(); err != nil {
		return sess.View(), err
	}
	return sess.View(), nil
}

// Edit 从确认页跳回指定字段。
func (m *Manager) Edit(externalID int64, field string) (ViewModel, error) {
	sl := m.acquire(externalID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sess, err := m.activeSession(sl, externalID)
	if err != nil {
		return ViewModel{}, err
	}
	if err := sess.Edit(field); err != nil {
		return sess.View(), err
	}
	return sess.View(), nil
}

// View 渲染用户当前状态的视图模型。
// 没有会话的用户看到的是起始页或（已计算时）固定提示。
func (m *Manager) View(externalID int64) (ViewModel, error) {
	sl := m.acquire(externalID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.sess != nil {
		return sl.sess.View(), nil
	}

	calculated, err := m.repo.IsCalculated(externalID)
	if err != nil && !errors.Is(err, user.ErrUserNotFound) {
		return ViewModel{}, err
	}
	if calculated {
		return committedView(), nil
	}
	return (&Session{Step: StepStart}).View(), nil
}

// Confirm 执行提交序列。整个序列在用户槽位锁内运行：
//  1. 重查持久记录上的calculated标记；
//  2. 已置位则不再计算，会话转入Committed，返回"已计算"结局；
//  3. 否则用收集到的五项回答调用计算引擎；
//  4. 仓库在单次条件写入中加密敏感字段、落库全部数据并翻转标记，
//     竞争输家由RowsAffected裁决，同样归于"已计算"结局；
//  5. 会话转入Committed并从槽位移除。
//
// 写入失败时calculated保持不变，会话停留在Confirm，可重试。
func (m *Manager) Confirm(externalID int64) (CommitResult, error) {
	sl := m.acquire(externalID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.sess == nil || sl.sess.Step == StepCommitted {
		// 无会话或已终结：维持幂等的"已计算"答复
		calculated, err := m.repo.IsCalculated(externalID)
		if err != nil && !errors.Is(err, user.ErrUserNotFound) {
			return CommitResult{}, err
		}
		if calculated {
			return CommitResult{AlreadyCalculated: true}, nil
		}
		return CommitResult{}, ErrNoActiveSession
	}

	sess := sl.sess
	if sess.Step != StepConfirm {
		return CommitResult{}, &ValidationError{Field: "", Message: "Подтверждение доступно только после ввода всех данных"}
	}
	if !sess.Answers.complete() {
		return CommitResult{}, &ValidationError{Field: "", Message: "Собраны не все данные"}
	}

	// 1-2. 提交前重查，拦截已经计算过的用户
	calculated, err := m.repo.IsCalculated(externalID)
	if err != nil {
		return CommitResult{}, fmt.Errorf("无法检查计算标记: %w", err)
	}
	if calculated {
		sess.Step = StepCommitted
		sl.sess = nil
		return CommitResult{AlreadyCalculated: true}, nil
	}

	// 3. 纯计算，无副作用
	result := calc.Calculate(calc.Input{
		Gender:         sess.Answers.Gender,
		Weight:         sess.Answers.Weight,
		Height:         sess.Answers.Height,
		Age:            sess.Answers.Age,
		ActivityFactor: sess.Answers.Activity,
	})

	profile := user.Profile{
		Gender:         sess.Answers.Gender,
		Age:            sess.Answers.Age,
		Height:         sess.Answers.Height,
		Weight:         sess.Answers.Weight,
		ActivityFactor: sess.Answers.Activity,
		Goal:           sess.Answers.Goal,
	}

	// 4. 单次条件写入：字段、calculated、calculated_at要么全部落库要么都不
	err = m.repo.CommitCalculation(externalID, profile, time.Now())
	if errors.Is(err, user.ErrAlreadyCalculated) {
		sess.Step = StepCommitted
		sl.sess = nil
		return CommitResult{AlreadyCalculated: true}, nil
	}
	if err != nil {
		// 写入未被证实成功，会话停留在Confirm
		return CommitResult{}, err
	}

	// 5. 会话终结并丢弃
	sess.Step = StepCommitted
	sl.sess = nil
	log.Printf("用户%d的КБЖУ计算已提交", externalID)

	return CommitResult{Result: result, Profile: profile}, nil
}

// activeSession 返回进行中的会话；没有时区分"已计算"与"未开始"。
func (m *Manager) activeSession(sl *slot, externalID int64) (*Session, error) {
	if sl.sess == nil || sl.sess.Step == StepCommitted {
		calculated, err := m.repo.IsCalculated(externalID)
		if err != nil && !errors.Is(err, user.ErrUserNotFound) {
			return nil, err
		}
		if calculated {
			return nil, ErrAlreadyCalculated
		}
		return nil, ErrNoActiveSession
	}
	return sl.sess, nil
}

// committedView 是已计算用户的固定视图。
func committedView() ViewModel {
	return (&Session{Step: StepCommitted}).View()
}
