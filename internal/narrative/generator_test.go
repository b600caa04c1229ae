package narrative

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ivanfit-health/kbju-bot-backend/internal/calc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult() calc.Result {
	return calc.Result{
		Energy:       2687.27,
		ProteinGrams: 134.4,
		FatGrams:     74.6,
		CarbGrams:    369.5,
		MealCount:    4,
	}
}

func TestOpenAIGeneratorSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		// 提示词里要带上全部数字
		assert.Contains(t, req.Messages[1].Content, "2687")
		assert.Contains(t, req.Messages[1].Content, "134.4")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Вот ваш план питания."}}]}`))
	}))
	defer srv.Close()

	g := NewOpenAIGenerator("test-key")
	g.baseURL = srv.URL

	text, err := g.Generate(context.Background(), testResult())
	require.NoError(t, err)
	assert.Equal(t, "Вот ваш план питания.", text)
}

func TestOpenAIGeneratorHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := NewOpenAIGenerator("test-key")
	g.baseURL = srv.URL

	_, err := g.Generate(context.Background(), testResult())
	assert.Error(t, err)
}

func TestOpenAIGeneratorEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	g := NewOpenAIGenerator("test-key")
	g.baseURL = srv.URL

	_, err := g.Generate(context.Background(), testResult())
	assert.Error(t, err)
}

func TestDisabledGeneratorAlwaysFails(t *testing.T) {
	_, err := Disabled{}.Generate(context.Background(), testResult())
	assert.Error(t, err)
}
