package subscription

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeChannel(t *testing.T) {
	cases := map[string]string{
		"@ivanfit_health":             "@ivanfit_health",
		"https://t.me/ivanfit_health": "@ivanfit_health",
		"https://t.me/+AbCdEf123":     "+AbCdEf123",
		"-1001234567890":              "-1001234567890",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeChannel(in), "输入%q", in)
	}
}

func TestTelegramCheckerStatuses(t *testing.T) {
	for status, want := range map[string]bool{
		"member":        true,
		"creator":       true,
		"administrator": true,
		"restricted":    true,
		"left":          false,
		"kicked":        false,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ok":true,"result":{"status":"` + status + `"}}`))
		}))

		checker := NewTelegramChecker("token", "@channel")
		checker.baseURL = srv.URL

		got, err := checker.IsSubscribed(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, want, got, "状态%q", status)
		srv.Close()
	}
}

func TestTelegramCheckerAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	checker := NewTelegramChecker("token", "@channel")
	checker.baseURL = srv.URL

	got, err := checker.IsSubscribed(context.Background(), 42)
	// 检查失败绝不能被当作"已订阅"
	require.Error(t, err)
	assert.False(t, got)
}

type fixedChecker struct {
	subscribed bool
	err        error
	calls      int
}

func (f *fixedChecker) IsSubscribed(ctx context.Context, id int64) (bool, error) {
	f.calls++
	return f.subscribed, f.err
}

func TestCachedCheckerWithoutRedisPassesThrough(t *testing.T) {
	inner := &fixedChecker{subscribed: true}
	cached := NewCachedChecker(inner, nil)

	for i := 0; i < 3; i++ {
		got, err := cached.IsSubscribed(context.Background(), 42)
		require.NoError(t, err)
		assert.True(t, got)
	}
	// 没有Redis时每次都回落到真实检查
	assert.Equal(t, 3, inner.calls)
}

func TestCachedCheckerPropagatesError(t *testing.T) {
	inner := &fixedChecker{err: errors.New("boom")}
	cached := NewCachedChecker(inner, nil)

	got, err := cached.IsSubscribed(context.Background(), 42)
	require.Error(t, err)
	assert.False(t, got)
}
