// Package calc 实现КБЖУ计算引擎：基于Harris-Benedict公式的
// 纯函数计算，无任何副作用，重复调用结果完全一致。
// 提交的一次性语义由会话层保证，与本包无关。
package calc

// 活动系数取值。Скип时使用中等活动系数。
const (
	ActivityLow     = 1.2
	ActivityMedium  = 1.55
	ActivityHigh    = 1.725
	DefaultActivity = ActivityMedium
)

// 宏量营养素固定配比与每克热量。均为领域常量，本层不可配置。
const (
	proteinShare = 0.20
	fatShare     = 0.25
	carbShare    = 0.55

	kcalPerGramProtein = 4.0
	kcalPerGramFat     = 9.0
	kcalPerGramCarb    = 4.0
)

// mealCountThreshold 是三餐与四餐的分界：能量 < 2000 为3餐，否则4餐。
const mealCountThreshold = 2000.0

// Gender 取值
const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// Input 是计算所需的五项已验证输入。
type Input struct {
	Gender         string
	Weight         float64 // 千克
	Height         int     // 厘米
	Age            int     // 岁
	ActivityFactor float64
}

// Result 是计算的结构化输出，数值不做四舍五入，由展示层决定精度。
type Result struct {
	Energy       float64 // 每日总能量消耗，千卡
	ProteinGrams float64
	FatGrams     float64
	CarbGrams    float64
	MealCount    int
}

// BMRMale 计算男性基础代谢率（Harris-Benedict）。
func BMRMale(weight float64, height, age int) float64 {
	return 66.47 + 13.75*weight + 5.0*float64(height) - 6.76*float64(age)
}

// BMRFemale 计算女性基础代谢率（Harris-Benedict）。
func BMRFemale(weight float64, height, age int) float64 {
	return 655.1 + 9.56*weight + 1.85*float64(height) - 4.68*float64(age)
}

// MealCount 根据总能量确定建议的进餐次数。阈值是硬分界，没有滞回。
func MealCount(energy float64) int {
	if energy < mealCountThreshold {
		return 3
	}
	return 4
}

// Calculate 根据五项输入计算每日能量与宏量营养素分配。
func Calculate(in Input) Result {
	var bmr float64
	if in.Gender == GenderFemale {
		bmr = BMRFemale(in.Weight, in.Height, in.Age)
	} else {
		bmr = BMRMale(in.Weight, in.Height, in.Age)
	}

	energy := bmr * in.ActivityFactor

	return Result{
		Energy:       energy,
		ProteinGrams: energy * proteinShare / kcalPerGramProtein,
		FatGrams:     energy * fatShare / kcalPerGramFat,
		CarbGrams:    energy * carbShare / kcalPerGramCarb,
		MealCount:    MealCount(energy),
	}
}
