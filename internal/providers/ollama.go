package providers

import (
	"context"
	"fmt"
)

// OllamaProvider Ollama大模型提供商
type OllamaProvider struct {
	*httpClient
}

// NewOllamaProvider 创建Ollama提供商
func NewOllamaProvider(baseURL string) *OllamaProvider {
	return &OllamaProvider{
		httpClient: newHTTPClient("ollama", baseURL, nil),
	}
}

// Name 返回提供商名称
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// ollamaMessage 对话消息
type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaChatRequest /api/chat请求体
type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaMessage        `json:"messages"`
	Format   map[string]interface{} `json:"format,omitempty"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// ollamaChatResponse /api/chat响应体
type ollamaChatResponse struct {
	Message         ollamaMessage `json:"message"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

// TestConnection 测试服务器连通性
func (p *OllamaProvider) TestConnection(ctx context.Context) error {
	return p.getJSON(ctx, "/api/tags", nil, nil)
}

// GetSimilarMedia 生成结构化的媒体推荐
func (p *OllamaProvider) GetSimilarMedia(ctx context.Context, req *SimilarMediaRequest) (*SimilarMediaResult, error) {
	if p.baseURL == "" {
		return nil, newConfigError(p.Name(), "ollama base url is not configured")
	}

	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		// chat接口期望有system消息
		systemPrompt = "You are a helpful assistant."
	}

	body := ollamaChatRequest{
		Model: req.Model,
		Messages: []ollamaMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: req.Prompt},
		},
		Format:  suggestionListSchema(),
		Stream:  false,
		Options: map[string]interface{}{"temperature": req.Temperature},
	}

	var resp ollamaChatResponse
	if err := p.postJSON(ctx, "/api/chat", body, &resp); err != nil {
		return nil, fmt.Errorf("ollama chat failed: %w", err)
	}

	suggestions, err := parseSuggestions(p.Name(), resp.Message.Content)
	if err != nil {
		return nil, err
	}

	return &SimilarMediaResult{
		Suggestions: suggestions,
		Usage: TokenUsage{
			PromptTokens:     resp.PromptEvalCount,
			CandidatesTokens: resp.EvalCount,
			ThoughtsTokens:   0,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}

// GetModels 列出本地已拉取的模型
func (p *OllamaProvider) GetModels(ctx context.Context) ([]string, error) {
	var resp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := p.getJSON(ctx, "/api/tags", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list ollama models: %w", err)
	}

	models := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, m.Name)
	}
	return models, nil
}
