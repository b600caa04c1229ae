package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ivanfit-health/kbju-bot-backend/internal/calc"
)

// ValidationError 表示一次输入未通过字段校验。
// 状态机停留在原状态，用户可以无限次重试。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("字段%s校验失败: %s", e.Field, e.Message)
}

// Answers 保存对话过程中已收集的回答。
// 在确认提交之前全部可变，提交前绝不落库。
type Answers struct {
	Gender      string
	GenderSet   bool
	Age         int
	AgeSet      bool
	Height      int
	HeightSet   bool
	Weight      float64
	WeightSet   bool
	Activity    float64
	ActivitySet bool
	Goal        string
	GoalSet     bool
}

// complete 判断确认所需的全部字段是否已收集。
// Goal是可选字段，不参与完整性判断。
func (a *Answers) complete() bool {
	return a.GenderSet && a.AgeSet && a.HeightSet && a.WeightSet && a.ActivitySet
}

// Session 是单个用户的对话会话，只存在于内存中。
// 并发保护由Manager的每用户锁提供，Session自身不加锁。
type Session struct {
	ExternalID int64
	Step       Step
	Answers    Answers

	// editing 标记当前Await状态是从Confirm跳回来的，
	// 回答成功后直接回到Confirm而不是继续线性推进。
	editing bool
}

// NewSession 创建一个新的会话并推进到第一个提问状态。
func NewSession(externalID int64) *Session {
	return &Session{
		ExternalID: externalID,
		Step:       StepAwaitGender,
	}
}

// SubmitAnswer 用原始输入驱动当前Await状态的转移。
// 校验失败返回*ValidationError且状态不变；成功则存储并前进。
func (s *Session) SubmitAnswer(raw string) error {
	value := strings.TrimSpace(raw)

	switch s.Step {
	case StepAwaitGender:
		gender := strings.ToLower(value)
		if gender != calc.GenderMale && gender != calc.GenderFemale {
			return &ValidationError{Field: "gender", Message: "Пожалуйста, выберите пол: мужской или женский"}
		}
		s.Answers.Gender = gender
		s.Answers.GenderSet = true

	case StepAwaitAge:
		age, err := strconv.Atoi(value)
		if err != nil {
			return &ValidationError{Field: "age", Message: "Пожалуйста, введите целое число"}
		}
		if age < 12 {
			return &ValidationError{Field: "age", Message: "Возраст должен быть не менее 12 лет"}
		}
		if age > 100 {
			return &ValidationError{Field: "age", Message: "Возраст должен быть не более 100 лет"}
		}
		s.Answers.Age = age
		s.Answers.AgeSet = true

	case StepAwaitHeight:
		height, err := strconv.Atoi(value)
		if err != nil {
			return &ValidationError{Field: "height", Message: "Пожалуйста, введите целое число"}
		}
		if height < 100 {
			return &ValidationError{Field: "height", Message: "Рост должен быть не менее 100 см"}
		}
		if height > 250 {
			return &ValidationError{Field: "height", Message: "Рост должен быть не более 250 см"}
		}
		s.Answers.Height = height
		s.Answers.HeightSet = true

	case StepAwaitWeight:
		// 俄语输入习惯用逗号作小数点
		weight, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", "."), 64)
		if err != nil {
			return &ValidationError{Field: "weight", Message: "Пожалуйста, введите число"}
		}
		if weight < 30 {
			return &ValidationError{Field: "weight", Message: "Вес должен быть не менее 30 кг"}
		}
		if weight > 300 {
			return &ValidationError{Field: "weight", Message: "Вес должен быть не более 300 кг"}
		}
		s.Answers.Weight = weight
		s.Answers.WeightSet = true

	case StepAwaitActivity:
		factor, ok := activityFactor(strings.ToLower(value))
		if !ok {
			return &ValidationError{Field: "activity", Message: "Пожалуйста, выберите уровень активности: низкий, средний или высокий"}
		}
		s.Answers.Activity = factor
		s.Answers.ActivitySet = true

	case StepAwaitGoal:
		goal := strings.ToLower(value)
		switch goal {
		case "weightloss", "musclegain", "recomp":
		default:
			return &ValidationError{Field: "goal", Message: "Пожалуйста, выберите цель из предложенных вариантов"}
		}
		s.Answers.Goal = goal
		s.Answers.GoalSet = true

	case StepStart, StepConfirm, StepCommitted:
		return &ValidationError{Field: "", Message: "Пожалуйста, следуйте инструкциям или используйте кнопки для ответа."}

	default:
		return &ValidationError{Field: "", Message: "Пожалуйста, следуйте инструкциям или используйте кнопки для ответа."}
	}

	s.advance()
	return nil
}

// Skip 处理显式跳过动作。
// 活动水平一步跳过时按设计存入默认系数1.55并前进，这是一条
// 命名的备选转移而不是错误路径；目标一步可选，跳过后留空。
func (s *Session) Skip() error {
	switch s.Step {
	case StepAwaitActivity:
		s.Answers.Activity = calc.DefaultActivity
		s.Answers.ActivitySet = true
	case StepAwaitGoal:
		s.Answers.Goal = ""
		s.Answers.GoalSet = true
	default:
		return &ValidationError{Field: "", Message: "Этот шаг нельзя пропустить"}
	}

	s.advance()
	return nil
}

// Edit 从Confirm跳回指定字段的Await状态，已收集的回答全部保留。
func (s *Session) Edit(field string) error {
	if s.Step != StepConfirm {
		return &ValidationError{Field: field, Message: "Изменение данных доступно только на шаге подтверждения"}
	}
	step, ok := stepForField(field)
	if !ok {
		return &ValidationError{Field: field, Message: "Неизвестное поле"}
	}
	s.Step = step
	s.editing = true
	return nil
}

// advance 执行一次成功回答后的状态推进。
func (s *Session) advance() {
	if s.editing && s.Answers.complete() {
		// 编辑完成后直接回到确认页
		s.Step = StepConfirm
		s.editing = false
		return
	}
	s.Step = s.Step.next()
}

// activityFactor 把活动水平标签映射为系数。
func activityFactor(label string) (float64, bool) {
	switch label {
	case "low":
		return calc.ActivityLow, true
	case "medium":
		return calc.ActivityMedium, true
	case "high":
		return calc.ActivityHigh, true
	}
	return 0, false
}
