package providers

import (
	"context"
	"fmt"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider OpenAI及兼容接口的大模型提供商
type OpenAIProvider struct {
	*httpClient
	apiKey string
}

// NewOpenAIProvider 创建OpenAI提供商
// baseURL为空时使用官方接口地址，可指向任意OpenAI兼容服务
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIProvider{
		httpClient: newHTTPClient("openai", baseURL, map[string]string{
			"Authorization": "Bearer " + apiKey,
		}),
		apiKey: apiKey,
	}
}

// Name 返回提供商名称
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// openaiMessage 对话消息
type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openaiResponseFormat 结构化输出配置
type openaiResponseFormat struct {
	Type       string                 `json:"type"`
	JSONSchema map[string]interface{} `json:"json_schema,omitempty"`
}

// openaiChatRequest /chat/completions请求体
type openaiChatRequest struct {
	Model          string                `json:"model"`
	Messages       []openaiMessage       `json:"messages"`
	Temperature    float64               `json:"temperature"`
	ResponseFormat *openaiResponseFormat `json:"response_format,omitempty"`
}

// openaiChatResponse /chat/completions响应体
type openaiChatResponse struct {
	Choices []struct {
		Message openaiMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// GetSimilarMedia 生成结构化的媒体推荐
func (p *OpenAIProvider) GetSimilarMedia(ctx context.Context, req *SimilarMediaRequest) (*SimilarMediaResult, error) {
	if p.apiKey == "" {
		return nil, newConfigError(p.Name(), "openai api key is not configured")
	}

	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = "You are a helpful assistant."
	}

	body := openaiChatRequest{
		Model: req.Model,
		Messages: []openaiMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: req.Temperature,
		ResponseFormat: &openaiResponseFormat{
			Type: "json_schema",
			JSONSchema: map[string]interface{}{
				"name":   "suggestion_list",
				"strict": true,
				"schema": suggestionListSchema(),
			},
		},
	}

	var resp openaiChatResponse
	if err := p.postJSON(ctx, "/chat/completions", body, &resp); err != nil {
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, &ProviderError{
			Type:     ErrorTypeDataFormat,
			Code:     "DATA_FORMAT",
			Message:  "openai response contains no choices",
			Provider: p.Name(),
		}
	}

	suggestions, err := parseSuggestions(p.Name(), resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	return &SimilarMediaResult{
		Suggestions: suggestions,
		Usage: TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CandidatesTokens: resp.Usage.CompletionTokens,
			ThoughtsTokens:   0,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// GetModels 列出账户可用的模型
func (p *OpenAIProvider) GetModels(ctx context.Context) ([]string, error) {
	if p.apiKey == "" {
		return nil, newConfigError(p.Name(), "openai api key is not configured")
	}

	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := p.getJSON(ctx, "/models", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list openai models: %w", err)
	}

	models := make([]string, 0, len(resp.Data))
	for _, m := range resp.Data {
		models = append(models, m.ID)
	}
	return models, nil
}
