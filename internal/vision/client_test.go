package vision

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

func testConfig(baseURL string) config.VisionConfig {
	return config.VisionConfig{
		BaseURL:     baseURL,
		Model:       "qwen/qwen3-vl-8b",
		MaxTokens:   800,
		Temperature: 0.2,
	}
}

func completionResponse(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
		"usage": map[string]int{"prompt_tokens": 100, "completion_tokens": 50, "total_tokens": 150},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestObserve(t *testing.T) {
	t.Run("request shape and narration", func(t *testing.T) {
		var got chatRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/chat/completions", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Write([]byte(completionResponse("A home screen with a search bar.")))
		}))
		defer srv.Close()

		c := New(testConfig(srv.URL+"/v1"), zap.NewNop())
		obs, err := c.Observe(context.Background(), schemas.ObserveRequest{
			Image: []byte("png-bytes"),
		})
		require.NoError(t, err)
		assert.Equal(t, "A home screen with a search bar.", obs.Description)
		assert.Nil(t, obs.Elements)

		assert.Equal(t, "qwen/qwen3-vl-8b", got.Model)
		assert.Equal(t, 800, got.MaxTokens)
		require.Len(t, got.Messages, 1)
		require.Len(t, got.Messages[0].Content, 2)
		assert.Equal(t, "text", got.Messages[0].Content[0].Type)
		assert.Contains(t, got.Messages[0].Content[0].Text, "Android phone screenshot")
		require.NotNil(t, got.Messages[0].Content[1].ImageURL)
		assert.True(t, strings.HasPrefix(got.Messages[0].Content[1].ImageURL.URL, "data:image/png;base64,"))
	})

	t.Run("coords request doubles the token budget and extracts elements", func(t *testing.T) {
		var got chatRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			body := "【屏幕描述部分】\n首页\n\n1. 🔥 **搜索框** (高优先级)\n   🎯 相对坐标：(500, 150)\n"
			w.Write([]byte(completionResponse(body)))
		}))
		defer srv.Close()

		screen := schemas.ScreenInfo{Width: 1080, Height: 2400}
		c := New(testConfig(srv.URL), zap.NewNop())
		obs, err := c.Observe(context.Background(), schemas.ObserveRequest{
			Image:      []byte("png"),
			WithCoords: true,
			Screen:     screen,
		})
		require.NoError(t, err)
		assert.Equal(t, 1600, got.MaxTokens)
		assert.Contains(t, got.Messages[0].Content[0].Text, "0-999")
		require.Len(t, obs.Elements, 1)
		assert.Equal(t, "搜索框", obs.Elements[0].Label)
		require.NotNil(t, obs.Screen)
		assert.Equal(t, 1080, obs.Screen.Width)
	})

	t.Run("focus text is appended to the prompt", func(t *testing.T) {
		var got chatRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Write([]byte(completionResponse("ok")))
		}))
		defer srv.Close()

		c := New(testConfig(srv.URL), zap.NewNop())
		_, err := c.Observe(context.Background(), schemas.ObserveRequest{
			Image: []byte("png"),
			Focus: "the login button",
		})
		require.NoError(t, err)
		assert.Contains(t, got.Messages[0].Content[0].Text, "Focus on: the login button")
	})

	t.Run("custom prompt replaces the default", func(t *testing.T) {
		var got chatRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Write([]byte(completionResponse("ok")))
		}))
		defer srv.Close()

		c := New(testConfig(srv.URL), zap.NewNop())
		_, err := c.Observe(context.Background(), schemas.ObserveRequest{
			Image:  []byte("png"),
			Prompt: "List every red pixel.",
		})
		require.NoError(t, err)
		assert.Equal(t, "List every red pixel.", got.Messages[0].Content[0].Text)
	})

	t.Run("non-200 status is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		c := New(testConfig(srv.URL), zap.NewNop())
		_, err := c.Observe(context.Background(), schemas.ObserveRequest{Image: []byte("png")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 503")
	})

	t.Run("empty choices is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		}))
		defer srv.Close()

		c := New(testConfig(srv.URL), zap.NewNop())
		_, err := c.Observe(context.Background(), schemas.ObserveRequest{Image: []byte("png")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no choices")
	})

	t.Run("timeout is enforced without retry", func(t *testing.T) {
		var requests int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			time.Sleep(300 * time.Millisecond)
			w.Write([]byte(completionResponse("too late")))
		}))
		defer srv.Close()

		c := New(testConfig(srv.URL), zap.NewNop())
		start := time.Now()
		_, err := c.Observe(context.Background(), schemas.ObserveRequest{
			Image:   []byte("png"),
			Timeout: 50 * time.Millisecond,
		})
		require.Error(t, err)
		assert.Less(t, time.Since(start), 250*time.Millisecond)
		assert.Equal(t, 1, requests, "a timed out observation must not be retried")
	})
}
