package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/redis/go-redis/v9"
)

// Checker 检查用户是否订阅了必需的频道。
// 传输错误时返回(false, err)：错误绝不能被当作"已订阅"。
type Checker interface {
	IsSubscribed(ctx context.Context, externalID int64) (bool, error)
}

// TelegramChecker 通过Bot API的getChatMember查询订阅状态。
type TelegramChecker struct {
	token   string
	channel string
	baseURL string
	client  *http.Client
}

// NewTelegramChecker 构造订阅检查器。
func NewTelegramChecker(token, channel string) *TelegramChecker {
	return &TelegramChecker{
		token:   token,
		channel: normalizeChannel(channel),
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

var (
	inviteLinkRe = regexp.MustCompile(`t\.me/(\+[a-zA-Z0-9_-]+)`)
	usernameRe   = regexp.MustCompile(`t\.me/([a-zA-Z0-9_]+)`)
)

// normalizeChannel 从链接或ID中提取chat_id。
func normalizeChannel(channel string) string {
	if len(channel) > 0 && channel[0] == '@' {
		return channel
	}
	if m := inviteLinkRe.FindStringSubmatch(channel); len(m) == 2 {
		return m[1]
	}
	if m := usernameRe.FindStringSubmatch(channel); len(m) == 2 {
		return "@" + m[1]
	}
	return channel
}

type chatMemberResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		Status string `json:"status"`
	} `json:"result"`
	Description string `json:"description"`
}

// IsSubscribed 查询用户在频道中的成员状态。
func (c *TelegramChecker) IsSubscribed(ctx context.Context, externalID int64) (bool, error) {
	endpoint := fmt.Sprintf("%s/bot%s/getChatMember?chat_id=%s&user_id=%d",
		c.baseURL, c.token, url.QueryEscape(c.channel), externalID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("构造订阅检查请求失败: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("订阅检查请求失败: %w", err)
	}
	defer resp.Body.Close()

	var body chatMemberResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("解析订阅检查响应失败: %w", err)
	}
	if !body.OK {
		return false, fmt.Errorf("订阅检查被拒绝: %s", body.Description)
	}

	switch body.Result.Status {
	case "creator", "administrator", "member", "restricted":
		return true, nil
	}
	return false, nil
}

// cacheTTL 是订阅状态缓存的有效期。
const cacheTTL = 5 * time.Minute

// CachedChecker 用Redis给订阅检查加一层尽力而为的缓存。
// 缓存读写失败一律忽略，直接回落到真实检查。
type CachedChecker struct {
	inner Checker
	rdb   *redis.Client
}

// NewCachedChecker 包装一个检查器。rdb为nil时退化为直通。
func NewCachedChecker(inner Checker, rdb *redis.Client) *CachedChecker {
	return &CachedChecker{inner: inner, rdb: rdb}
}

func cacheKey(externalID int64) string {
	return fmt.Sprintf("subscription:%d", externalID)
}

func (c *CachedChecker) IsSubscribed(ctx context.Context, externalID int64) (bool, error) {
	if c.rdb != nil {
		if val, err := c.rdb.Get(ctx, cacheKey(externalID)).Result(); err == nil {
			return val == "1", nil
		}
	}

	subscribed, err := c.inner.IsSubscribed(ctx, externalID)
	if err != nil {
		return false, err
	}

	if c.rdb != nil {
		val := "0"
		if subscribed {
			val = "1"
		}
		// 缓存写失败不影响结果
		_ = c.rdb.Set(ctx, cacheKey(externalID), val, cacheTTL).Err()
	}
	return subscribed, nil
}
