package providers

import (
	"encoding/json"
	"fmt"
	"time"
)

// suggestionListSchema 推荐列表的JSON Schema，发送给支持结构化输出的模型
// 字段与Suggestion结构体一一对应
func suggestionListSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"suggestions": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"title":       map[string]interface{}{"type": "string", "description": "The title of the media."},
						"description": map[string]interface{}{"type": "string", "description": "Description of the media."},
						"similarity":  map[string]interface{}{"type": "string", "description": "A short summary of how this media relates to the request."},
						"mediaType":   map[string]interface{}{"type": "string", "enum": []string{"movie", "tv"}},
						"rt_url":      map[string]interface{}{"type": "string", "description": "Full Rotten Tomatoes URL for the media."},
						"rt_score":    map[string]interface{}{"type": "integer", "description": "Rotten Tomatoes Score for the media."},
					},
					"required": []string{"title", "description", "similarity", "mediaType", "rt_url", "rt_score"},
				},
			},
		},
		"required": []string{"suggestions"},
	}
}

// geminiSuggestionSchema Gemini REST接口的schema变体，类型名用大写枚举
func geminiSuggestionSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "OBJECT",
		"properties": map[string]interface{}{
			"suggestions": map[string]interface{}{
				"type": "ARRAY",
				"items": map[string]interface{}{
					"type": "OBJECT",
					"properties": map[string]interface{}{
						"title":       map[string]interface{}{"type": "STRING"},
						"description": map[string]interface{}{"type": "STRING"},
						"similarity":  map[string]interface{}{"type": "STRING"},
						"mediaType":   map[string]interface{}{"type": "STRING", "enum": []string{"movie", "tv"}},
						"rt_url":      map[string]interface{}{"type": "STRING"},
						"rt_score":    map[string]interface{}{"type": "INTEGER"},
					},
					"required": []string{"title", "description", "similarity", "mediaType", "rt_url", "rt_score"},
				},
			},
		},
		"required": []string{"suggestions"},
	}
}

// parseSuggestions 解析模型输出的JSON文本
func parseSuggestions(provider, text string) ([]*Suggestion, error) {
	var payload struct {
		Suggestions []*Suggestion `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, &ProviderError{
			Type:      ErrorTypeDataFormat,
			Code:      "DATA_FORMAT",
			Message:   fmt.Sprintf("model returned malformed JSON: %v: %s", err, truncate(text, 200)),
			Provider:  provider,
			Retryable: false,
			Cause:     err,
			Timestamp: time.Now(),
		}
	}
	return payload.Suggestions, nil
}
