package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestOllamaProvider_GetSimilarMedia(t *testing.T) {
	var captured ollamaChatRequest

	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{
			"message":{"role":"assistant","content":"{\"suggestions\":[{\"title\":\"Coherence\",\"description\":\"Dinner party physics\",\"similarity\":\"Low budget mind bender\",\"mediaType\":\"movie\",\"rt_url\":\"https://www.rottentomatoes.com/m/coherence\",\"rt_score\":88}]}"},
			"prompt_eval_count":100,
			"eval_count":50
		}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	provider := NewOllamaProvider(server.URL)
	result, err := provider.GetSimilarMedia(context.Background(), &SimilarMediaRequest{
		Model:       "llama3.1",
		Prompt:      "movies like Primer",
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if captured.Model != "llama3.1" {
		t.Errorf("Expected model llama3.1, got %s", captured.Model)
	}
	if captured.Stream {
		t.Error("Expected stream to be disabled")
	}
	if captured.Format == nil {
		t.Error("Expected structured output format to be set")
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" || captured.Messages[1].Role != "user" {
		t.Errorf("Expected system+user messages, got %+v", captured.Messages)
	}
	// 未提供system提示词时使用默认值
	if captured.Messages[0].Content == "" {
		t.Error("Expected default system prompt")
	}

	if len(result.Suggestions) != 1 {
		t.Fatalf("Expected 1 suggestion, got %d", len(result.Suggestions))
	}
	expected := &Suggestion{
		Title:       "Coherence",
		Description: "Dinner party physics",
		Similarity:  "Low budget mind bender",
		MediaType:   "movie",
		RtURL:       "https://www.rottentomatoes.com/m/coherence",
		RtScore:     88,
	}
	if !reflect.DeepEqual(result.Suggestions[0], expected) {
		t.Errorf("Expected suggestion %+v, got %+v", expected, result.Suggestions[0])
	}

	if result.Usage.PromptTokens != 100 || result.Usage.CandidatesTokens != 50 {
		t.Errorf("Expected token usage 100/50, got %d/%d", result.Usage.PromptTokens, result.Usage.CandidatesTokens)
	}
	if result.Usage.TotalTokens != 150 {
		t.Errorf("Expected total tokens 150, got %d", result.Usage.TotalTokens)
	}
}

func TestOllamaProvider_GetSimilarMedia_MalformedResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"role":"assistant","content":"sorry, I cannot help with that"}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	provider := NewOllamaProvider(server.URL)
	_, err := provider.GetSimilarMedia(context.Background(), &SimilarMediaRequest{Model: "llama3.1", Prompt: "x"})
	if err == nil {
		t.Fatal("Expected error for non-JSON model output")
	}

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected ProviderError, got %T", err)
	}
	if perr.Type != ErrorTypeDataFormat {
		t.Errorf("Expected data format error type, got %s", perr.Type)
	}
	if perr.Retryable {
		t.Error("Expected data format error to be non-retryable")
	}
}

func TestOllamaProvider_GetSimilarMedia_MissingBaseURL(t *testing.T) {
	provider := NewOllamaProvider("")

	_, err := provider.GetSimilarMedia(context.Background(), &SimilarMediaRequest{Model: "llama3.1", Prompt: "x"})
	if err == nil {
		t.Fatal("Expected error for missing base url")
	}

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected ProviderError, got %T", err)
	}
	if perr.Type != ErrorTypeConfig {
		t.Errorf("Expected configuration error type, got %s", perr.Type)
	}
}

func TestOllamaProvider_GetModels(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"llama3.1:8b"},{"name":"qwen2.5:14b"}]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	provider := NewOllamaProvider(server.URL)
	models, err := provider.GetModels(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	expected := []string{"llama3.1:8b", "qwen2.5:14b"}
	if !reflect.DeepEqual(models, expected) {
		t.Errorf("Expected models %v, got %v", expected, models)
	}
}
