package providers

import (
	"context"
	"fmt"
	"strings"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider Google Gemini大模型提供商
type GeminiProvider struct {
	*httpClient
	apiKey string
}

// NewGeminiProvider 创建Gemini提供商
func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{
		httpClient: newHTTPClient("gemini", geminiBaseURL, map[string]string{
			"x-goog-api-key": apiKey,
		}),
		apiKey: apiKey,
	}
}

// Name 返回提供商名称
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// geminiPart 内容片段
type geminiPart struct {
	Text string `json:"text"`
}

// geminiContent 对话内容
type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

// geminiThinkingConfig 推理预算配置，仅2.5系列模型支持
type geminiThinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

// geminiGenerationConfig 生成参数
type geminiGenerationConfig struct {
	Temperature      float64                `json:"temperature"`
	ResponseMimeType string                 `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]interface{} `json:"responseSchema,omitempty"`
	ThinkingConfig   *geminiThinkingConfig  `json:"thinkingConfig,omitempty"`
}

// geminiRequest generateContent请求体
type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

// geminiResponse generateContent响应体
type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		ThoughtsTokenCount   int `json:"thoughtsTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// GetSimilarMedia 生成结构化的媒体推荐
func (p *GeminiProvider) GetSimilarMedia(ctx context.Context, req *SimilarMediaRequest) (*SimilarMediaResult, error) {
	if p.apiKey == "" {
		return nil, newConfigError(p.Name(), "gemini api key is not configured")
	}

	body := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      req.Temperature,
			ResponseMimeType: "application/json",
			ResponseSchema:   geminiSuggestionSchema(),
		},
	}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	// 推理预算只对2.5系列模型生效
	if req.ThinkingBudget > 0 && (strings.Contains(req.Model, "2.5-pro") || strings.Contains(req.Model, "2.5-flash")) {
		body.GenerationConfig.ThinkingConfig = &geminiThinkingConfig{ThinkingBudget: int(req.ThinkingBudget)}
	}

	var resp geminiResponse
	if err := p.postJSON(ctx, "/models/"+req.Model+":generateContent", body, &resp); err != nil {
		return nil, fmt.Errorf("gemini generate content failed: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, &ProviderError{
			Type:     ErrorTypeDataFormat,
			Code:     "DATA_FORMAT",
			Message:  "gemini response contains no candidates",
			Provider: p.Name(),
		}
	}

	suggestions, err := parseSuggestions(p.Name(), resp.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return nil, err
	}

	return &SimilarMediaResult{
		Suggestions: suggestions,
		Usage: TokenUsage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CandidatesTokens: resp.UsageMetadata.CandidatesTokenCount,
			ThoughtsTokens:   resp.UsageMetadata.ThoughtsTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

// GetModels 列出可用模型，去掉models/前缀
func (p *GeminiProvider) GetModels(ctx context.Context) ([]string, error) {
	if p.apiKey == "" {
		return nil, newConfigError(p.Name(), "gemini api key is not configured")
	}

	var resp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := p.getJSON(ctx, "/models", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list gemini models: %w", err)
	}

	models := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, strings.TrimPrefix(m.Name, "models/"))
	}
	return models, nil
}
