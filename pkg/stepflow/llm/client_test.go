package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Chat(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(ChatResponse{
			Content: `{"ok":true}`,
			Model:   "test-model",
			Usage:   &TokenUsage{InputTokens: 12, OutputTokens: 4, TotalTokens: 16},
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL,
		WithAPIKey("test-key"),
		WithModel("test-model"),
	)

	resp, err := client.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})

	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp.Content)
	assert.Equal(t, "test-model", resp.Model)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 16, resp.Usage.TotalTokens)

	// The client default fills in a request that named no model.
	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content)
}

func TestHTTPClient_RequestModelWins(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(ChatResponse{Content: "{}", Model: got.Model})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, WithModel("default-model"))

	_, err := client.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Model:    "explicit-model",
	})

	require.NoError(t, err)
	assert.Equal(t, "explicit-model", got.Model)
}

func TestHTTPClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	_, err := client.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	require.Error(t, err)
	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, http.StatusTooManyRequests, llmErr.Status)
	assert.Contains(t, llmErr.Error(), "rate limited")
}

func TestHTTPClient_ErrorBodyNotJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	_, err := client.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	require.Error(t, err)
	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, http.StatusBadGateway, llmErr.Status)
	assert.Contains(t, llmErr.Error(), "upstream exploded")
}

func TestHTTPClient_ContextCanceled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewHTTPClient(srv.URL)
	_, err := client.Chat(ctx, ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockClient_ConcurrentConfigureAndChat(t *testing.T) {
	// Setters and Chat share the mock's mutex, so reconfiguring while
	// calls are in flight is safe (the race detector verifies this).
	mock := NewMockClient(`{}`)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, _ = mock.Chat(context.Background(), ChatRequest{})
			}
		}()
	}
	mock.WithError(nil)
	mock.WithChatFunc(nil)
	wg.Wait()

	assert.Equal(t, 100, mock.CallCount())
}

func TestMockClient_CyclesResponses(t *testing.T) {
	mock := NewMockClient("one", "two")

	for _, want := range []string{"one", "two", "one"} {
		resp, err := mock.Chat(context.Background(), ChatRequest{})
		require.NoError(t, err)
		assert.Equal(t, want, resp.Content)
	}
	assert.Equal(t, 3, mock.CallCount())

	mock.Reset()
	assert.Equal(t, 0, mock.CallCount())
	resp, err := mock.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "one", resp.Content)
}
