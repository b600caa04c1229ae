package dialog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ivanfit-health/kbju-bot-backend/internal/narrative"
	"github.com/ivanfit-health/kbju-bot-backend/internal/session"
	"github.com/ivanfit-health/kbju-bot-backend/internal/subscription"
	"github.com/ivanfit-health/kbju-bot-backend/pkg/fieldcrypt"
)

// Handler 是对话适配层：把平台入站事件翻译成状态机转移，
// 并把状态机输出渲染回平台。
type Handler struct {
	manager   *session.Manager
	checker   subscription.Checker
	generator narrative.Generator
	channel   string
}

// NewHandler 构造对话适配器。
func NewHandler(manager *session.Manager, checker subscription.Checker, generator narrative.Generator, channel string) *Handler {
	return &Handler{
		manager:   manager,
		checker:   checker,
		generator: generator,
		channel:   channel,
	}
}

// answerRequest 是入站回答的请求体。
type answerRequest struct {
	Value string `json:"value" binding:"required"`
}

// actionRequest 是入站控制动作的请求体。
type actionRequest struct {
	Action string `json:"action" binding:"required"`
}

// response 是适配层的统一出站形态。
type response struct {
	View    *session.ViewModel `json:"view,omitempty"`
	Message string             `json:"message,omitempty"`
	Error   string             `json:"error,omitempty"`
}

func parseUserID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, response{Error: "Некорректный идентификатор пользователя"})
		return 0, false
	}
	return id, true
}

// GetView 处理 GET /dialog/:user_id/view
func (h *Handler) GetView(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	vm, err := h.manager.View(userID)
	if err != nil {
		h.renderFailure(c, userID, err)
		return
	}
	c.JSON(http.StatusOK, response{View: &vm})
}

// PostAnswer 处理 POST /dialog/:user_id/answer
func (h *Handler) PostAnswer(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response{Error: "Пожалуйста, введите ответ"})
		return
	}

	vm, err := h.manager.SubmitAnswer(userID, req.Value)
	if err != nil {
		var vErr *session.ValidationError
		if errors.As(err, &vErr) {
			// 校验失败：状态不变，回显约束说明和原视图
			c.JSON(http.StatusOK, response{View: &vm, Message: vErr.Message})
			return
		}
		h.renderFailure(c, userID, err)
		return
	}
	c.JSON(http.StatusOK, response{View: &vm})
}

// PostAction 处理 POST /dialog/:user_id/action
func (h *Handler) PostAction(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response{Error: "Не указано действие"})
		return
	}

	switch {
	case req.Action == "start_calculation":
		h.startCalculation(c, userID)
	case req.Action == "check_subscription":
		h.checkSubscription(c, userID)
	case req.Action == "confirm":
		h.confirm(c, userID)
	case req.Action == "skip":
		h.apply(c, userID, func() (session.ViewModel, error) { return h.manager.Skip(userID) })
	case strings.HasPrefix(req.Action, "edit:"):
		field := strings.TrimPrefix(req.Action, "edit:")
		h.apply(c, userID, func() (session.ViewModel, error) { return h.manager.Edit(userID, field) })
	default:
		c.JSON(http.StatusBadRequest, response{Error: "Неизвестное действие"})
	}
}

// startCalculation 先做订阅门禁，再开启会话。
func (h *Handler) startCalculation(c *gin.Context, userID int64) {
	subscribed, err := h.checker.IsSubscribed(c.Request.Context(), userID)
	if err != nil {
		// 检查失败一律按未订阅处理，但提示语要区分于"确实未订阅"
		log.Printf("用户%d订阅检查失败: %v", userID, err)
		c.JSON(http.StatusOK, response{Message: "Не удалось проверить подписку. Попробуйте ещё раз чуть позже."})
		return
	}
	if !subscribed {
		c.JSON(http.StatusOK, response{Message: h.subscribePrompt()})
		return
	}

	h.apply(c, userID, func() (session.ViewModel, error) { return h.manager.StartCalculation(userID) })
}

// checkSubscription 处理"我已订阅，检查"按钮。
func (h *Handler) checkSubscription(c *gin.Context, userID int64) {
	subscribed, err := h.checker.IsSubscribed(c.Request.Context(), userID)
	if err != nil {
		log.Printf("用户%d订阅检查失败: %v", userID, err)
		c.JSON(http.StatusOK, response{Message: "Не удалось проверить подписку. Попробуйте ещё раз чуть позже."})
		return
	}
	if !subscribed {
		c.JSON(http.StatusOK, response{Message: fmt.Sprintf(
			"❌ Вы все еще не подписаны на канал %s.\n\nПожалуйста, сначала подпишитесь, затем нажмите кнопку проверки снова.", h.channel)})
		return
	}
	c.JSON(http.StatusOK, response{Message: "🎉 Отлично! Вы подписаны на канал.\n\nТеперь вы можете начать расчет КБЖУ."})
}

// confirm 执行提交并渲染最终结果。
func (h *Handler) confirm(c *gin.Context, userID int64) {
	res, err := h.manager.Confirm(userID)
	if err != nil {
		var vErr *session.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusOK, response{Message: vErr.Message})
			return
		}
		h.renderFailure(c, userID, err)
		return
	}

	if res.AlreadyCalculated {
		c.JSON(http.StatusOK, response{Message: alreadyCalculatedMessage})
		return
	}

	message := formatResult(res.Result)

	// 叙述生成是尽力而为的：失败时只投递数字结果
	ctx, cancel := context.WithTimeout(c.Request.Context(), 25*time.Second)
	defer cancel()
	if text, err := h.generator.Generate(ctx, res.Result); err == nil && text != "" {
		message = message + "\n\n" + text
	} else if err != nil {
		log.Printf("用户%d的叙述生成失败，仅投递数字结果: %v", userID, err)
	}

	c.JSON(http.StatusOK, response{Message: message})
}

// apply 执行一次状态机转移并渲染结果视图。
func (h *Handler) apply(c *gin.Context, userID int64, fn func() (session.ViewModel, error)) {
	vm, err := fn()
	if err != nil {
		var vErr *session.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusOK, response{View: &vm, Message: vErr.Message})
			return
		}
		h.renderFailure(c, userID, err)
		return
	}
	c.JSON(http.StatusOK, response{View: &vm})
}

const alreadyCalculatedMessage = "Вы уже получили расчет КБЖУ. Повторный расчет на данный момент недоступен."

// renderFailure 把核心错误翻译成用户可见的答复。
// 解密错误对用户是笼统的失败提示，但在日志中可与"无数据"区分。
func (h *Handler) renderFailure(c *gin.Context, userID int64, err error) {
	switch {
	case errors.Is(err, session.ErrAlreadyCalculated):
		c.JSON(http.StatusOK, response{Message: alreadyCalculatedMessage})
	case errors.Is(err, session.ErrNoActiveSession):
		c.JSON(http.StatusOK, response{Message: "Нет активного диалога. Нажмите кнопку, чтобы начать расчет."})
	case fieldcrypt.IsDecryptError(err):
		log.Printf("用户%d的记录解密失败: %v", userID, err)
		c.JSON(http.StatusInternalServerError, response{Error: "Произошла ошибка. Попробуйте позже."})
	default:
		log.Printf("处理用户%d的请求失败: %v", userID, err)
		c.JSON(http.StatusInternalServerError, response{Error: "Произошла ошибка. Попробуйте позже."})
	}
}

// subscribePrompt 是未订阅用户看到的引导语。
func (h *Handler) subscribePrompt() string {
	return fmt.Sprintf(
		"👋 Привет! Для использования бота, пожалуйста, подпишитесь на наш канал: %s\n\n"+
			"После подписки нажмите кнопку «🔄 Я подписался, проверить».", h.channel)
}
