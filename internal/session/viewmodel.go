package session

import (
	"fmt"

	"github.com/ivanfit-health/kbju-bot-backend/internal/calc"
)

// InputKind 描述当前状态接受的输入形态。
type InputKind string

const (
	InputChoice  InputKind = "choice"  // 从Options中选择
	InputInteger InputKind = "integer" // 整数文本
	InputNumber  InputKind = "number"  // 小数文本
	InputNone    InputKind = "none"    // 只接受控制动作
)

// Option 是choice输入的一个可选项。
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// SummaryRow 是确认页上的一行数据回显。
type SummaryRow struct {
	Field string `json:"field"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// ViewModel 向对话适配层完整描述当前状态：
// 提示语、接受的输入形态和可用的控制动作。
type ViewModel struct {
	Step    string       `json:"step"`
	Prompt  string       `json:"prompt"`
	Input   InputKind    `json:"input"`
	Options []Option     `json:"options,omitempty"`
	Actions []string     `json:"actions,omitempty"`
	Summary []SummaryRow `json:"summary,omitempty"`
}

var (
	genderOptions = []Option{
		{Value: "male", Label: "Мужской"},
		{Value: "female", Label: "Женский"},
	}
	activityOptions = []Option{
		{Value: "low", Label: "Низкий"},
		{Value: "medium", Label: "Средний"},
		{Value: "high", Label: "Высокий"},
	}
	goalOptions = []Option{
		{Value: "weightloss", Label: "Похудение"},
		{Value: "musclegain", Label: "Набор массы"},
		{Value: "recomp", Label: "Рекомпозиция"},
	}
)

// View 渲染会话当前状态的视图模型。
func (s *Session) View() ViewModel {
	switch s.Step {
	case StepAwaitGender:
		return ViewModel{
			Step:    s.Step.String(),
			Prompt:  "Укажите ваш пол:",
			Input:   InputChoice,
			Options: genderOptions,
		}
	case StepAwaitAge:
		return ViewModel{
			Step:   s.Step.String(),
			Prompt: "Укажите ваш возраст (полных лет):",
			Input:  InputInteger,
		}
	case StepAwaitHeight:
		return ViewModel{
			Step:   s.Step.String(),
			Prompt: "Укажите ваш рост (в сантиметрах):",
			Input:  InputInteger,
		}
	case StepAwaitWeight:
		return ViewModel{
			Step:   s.Step.String(),
			Prompt: "Укажите ваш вес (в килограммах):",
			Input:  InputNumber,
		}
	case StepAwaitActivity:
		return ViewModel{
			Step: s.Step.String(),
			Prompt: "Выберите уровень вашей физической активности:\n\n" +
				"• Низкий — если вы работаете за компьютером, почти не ходите пешком и не занимаетесь спортом.\n" +
				"• Средний — если вы ходите пешком хотя бы 30–60 минут в день или делаете лёгкие тренировки 1–3 раза в неделю.\n" +
				"• Высокий — если вы занимаетесь спортом 3–5 раз в неделю или у вас физическая работа.",
			Input:   InputChoice,
			Options: activityOptions,
			Actions: []string{"skip"},
		}
	case StepAwaitGoal:
		return ViewModel{
			Step:    s.Step.String(),
			Prompt:  "Какая у вас цель?",
			Input:   InputChoice,
			Options: goalOptions,
			Actions: []string{"skip"},
		}
	case StepConfirm:
		return ViewModel{
			Step: s.Step.String(),
			Prompt: "📋 Проверьте введенные данные.\n" +
				"Если все данные верны, нажмите кнопку «Подтвердить».\n" +
				"Если хотите что-то изменить, воспользуйтесь соответствующими кнопками.",
			Input:   InputNone,
			Actions: []string{"confirm", "edit:gender", "edit:age", "edit:height", "edit:weight", "edit:activity", "edit:goal"},
			Summary: s.summary(),
		}
	case StepCommitted:
		return ViewModel{
			Step:   s.Step.String(),
			Prompt: "Вы уже получили расчет КБЖУ. Повторный расчет на данный момент недоступен.",
			Input:  InputNone,
		}
	}

	// StepStart以及任何未入会话的状态
	return ViewModel{
		Step:    StepStart.String(),
		Prompt:  "Добро пожаловать в бот для расчёта КБЖУ! Нажмите кнопку ниже, чтобы начать.",
		Input:   InputNone,
		Actions: []string{"start_calculation"},
	}
}

// summary 渲染确认页的数据回显。
func (s *Session) summary() []SummaryRow {
	a := &s.Answers

	gender := "Не указан"
	if a.Gender == calc.GenderMale {
		gender = "Мужской"
	} else if a.Gender == calc.GenderFemale {
		gender = "Женский"
	}

	activity := "Не указан"
	switch a.Activity {
	case calc.ActivityLow:
		activity = "Низкий"
	case calc.ActivityMedium:
		activity = "Средний"
	case calc.ActivityHigh:
		activity = "Высокий"
	}

	goal := "Не указана"
	switch a.Goal {
	case "weightloss":
		goal = "Похудение"
	case "musclegain":
		goal = "Набор массы"
	case "recomp":
		goal = "Рекомпозиция"
	}

	return []SummaryRow{
		{Field: "gender", Label: "👤 Пол", Value: gender},
		{Field: "age", Label: "🔢 Возраст", Value: fmt.Sprintf("%d лет", a.Age)},
		{Field: "height", Label: "📏 Рост", Value: fmt.Sprintf("%d см", a.Height)},
		{Field: "weight", Label: "⚖️ Вес", Value: fmt.Sprintf("%.1f кг", a.Weight)},
		{Field: "activity", Label: "🏃 Уровень активности", Value: activity},
		{Field: "goal", Label: "🎯 Цель", Value: goal},
	}
}
