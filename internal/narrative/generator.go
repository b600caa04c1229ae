package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ivanfit-health/kbju-bot-backend/internal/calc"
)

// Generator 根据计算结果生成一段膳食计划叙述。
// 这是尽力而为的外部协作方：失败绝不能阻塞数字结果的投递，
// 调用方在出错时直接省略叙述。
type Generator interface {
	Generate(ctx context.Context, result calc.Result) (string, error)
}

// OpenAIGenerator 通过chat completions接口生成叙述文本。
type OpenAIGenerator struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewOpenAIGenerator 构造叙述生成器。
func NewOpenAIGenerator(apiKey string) *OpenAIGenerator {
	return &OpenAIGenerator{
		apiKey:  apiKey,
		baseURL: "https://api.openai.com/v1/chat/completions",
		model:   "gpt-4o-mini",
		client:  &http.Client{Timeout: 20 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const systemPrompt = "Ты — диетолог-нутрициолог. Твоя задача — коротко и дружелюбно описать, " +
	"как распределить суточную норму КБЖУ по приёмам пищи. Отвечай по-русски, без JSON и без таблиц."

// Generate 构造提示词并调用模型。
func (g *OpenAIGenerator) Generate(ctx context.Context, result calc.Result) (string, error) {
	userPrompt := fmt.Sprintf(
		"Разбей следующую суточную норму КБЖУ на %d приема пищи:\n\n"+
			"Калории: %.0f ккал\nБелки: %.1f г\nЖиры: %.1f г\nУглеводы: %.1f г",
		result.MealCount, result.Energy, result.ProteinGrams, result.FatGrams, result.CarbGrams)

	payload, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("序列化叙述请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("构造叙述请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("叙述生成请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("叙述生成返回状态%d", resp.StatusCode)
	}

	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("解析叙述响应失败: %w", err)
	}
	if len(body.Choices) == 0 {
		return "", errors.New("叙述响应为空")
	}
	return body.Choices[0].Message.Content, nil
}

// Disabled 是未配置API密钥时使用的空实现。
type Disabled struct{}

func (Disabled) Generate(ctx context.Context, result calc.Result) (string, error) {
	return "", errors.New("叙述生成未启用")
}
