package dialog

import (
	"fmt"
	"math"
	"strings"

	"github.com/ivanfit-health/kbju-bot-backend/internal/calc"
)

// meal 是结果消息中的单个进餐条目。
type meal struct {
	Name     string
	Calories float64
	Protein  float64
	Fat      float64
	Carbs    float64
}

// distributeMeals 把全天КБЖУ按固定比例分配到各餐。
func distributeMeals(result calc.Result) []meal {
	type share struct {
		name  string
		ratio float64
	}

	var shares []share
	if result.MealCount == 3 {
		shares = []share{{"Завтрак", 0.30}, {"Обед", 0.45}, {"Ужин", 0.25}}
	} else {
		shares = []share{{"Завтрак", 0.25}, {"Обед", 0.35}, {"Полдник", 0.15}, {"Ужин", 0.25}}
	}

	meals := make([]meal, 0, len(shares))
	for _, s := range shares {
		meals = append(meals, meal{
			Name:     s.name,
			Calories: math.Round(result.Energy * s.ratio),
			Protein:  round1(result.ProteinGrams * s.ratio),
			Fat:      round1(result.FatGrams * s.ratio),
			Carbs:    round1(result.CarbGrams * s.ratio),
		})
	}
	return meals
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// formatResult 渲染КБЖУ结果消息，数值在此处而非计算引擎里做舍入。
func formatResult(result calc.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🔢 Ваш расчет КБЖУ:\n\n")
	fmt.Fprintf(&b, "📊 Суточная норма калорий: %.0f ккал\n\n", math.Round(result.Energy))
	fmt.Fprintf(&b, "🥩 Белки: %.1f г\n", round1(result.ProteinGrams))
	fmt.Fprintf(&b, "🥑 Жиры: %.1f г\n", round1(result.FatGrams))
	fmt.Fprintf(&b, "🍞 Углеводы: %.1f г\n\n", round1(result.CarbGrams))
	fmt.Fprintf(&b, "🍽️ Рекомендуемое количество приемов пищи: %d\n\n", result.MealCount)

	b.WriteString("📋 Распределение по приемам пищи:\n\n")
	for i, m := range distributeMeals(result) {
		fmt.Fprintf(&b, "%d. %s\nКалории: %.0f ккал\nБелки: %.1f г\nЖиры: %.1f г\nУглеводы: %.1f г\n\n",
			i+1, m.Name, m.Calories, m.Protein, m.Fat, m.Carbs)
	}

	b.WriteString("Этот расчет основан на формуле Харриса-Бенедикта и предназначен для общего ознакомления.")
	return b.String()
}
