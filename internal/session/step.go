package session

// Step 是对话状态机的封闭状态枚举。
// 状态严格线性推进，只有Confirm允许单步跳回某个Await状态。
// 新增状态必须同时补全machine.go里的每一个switch分支。
type Step int

const (
	StepStart Step = iota
	StepAwaitGender
	StepAwaitAge
	StepAwaitHeight
	StepAwaitWeight
	StepAwaitActivity
	StepAwaitGoal
	StepConfirm
	StepCommitted
)

// String 返回状态的稳定名称，用于视图和日志。
func (s Step) String() string {
	switch s {
	case StepStart:
		return "start"
	case StepAwaitGender:
		return "await_gender"
	case StepAwaitAge:
		return "await_age"
	case StepAwaitHeight:
		return "await_height"
	case StepAwaitWeight:
		return "await_weight"
	case StepAwaitActivity:
		return "await_activity"
	case StepAwaitGoal:
		return "await_goal"
	case StepConfirm:
		return "confirmation"
	case StepCommitted:
		return "committed"
	}
	return "unknown"
}

// next 返回线性流程中该状态的后继状态。
func (s Step) next() Step {
	switch s {
	case StepStart:
		return StepAwaitGender
	case StepAwaitGender:
		return StepAwaitAge
	case StepAwaitAge:
		return StepAwaitHeight
	case StepAwaitHeight:
		return StepAwaitWeight
	case StepAwaitWeight:
		return StepAwaitActivity
	case StepAwaitActivity:
		return StepAwaitGoal
	case StepAwaitGoal:
		return StepConfirm
	}
	return s
}

// stepForField 把可编辑字段名映射到对应的Await状态。
func stepForField(field string) (Step, bool) {
	switch field {
	case "gender":
		return StepAwaitGender, true
	case "age":
		return StepAwaitAge, true
	case "height":
		return StepAwaitHeight, true
	case "weight":
		return StepAwaitWeight, true
	case "activity":
		return StepAwaitActivity, true
	case "goal":
		return StepAwaitGoal, true
	}
	return StepStart, false
}
