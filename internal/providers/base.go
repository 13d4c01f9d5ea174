package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// httpClient 提供商共享的HTTP基础设施
// 所有REST提供商内嵌它以复用请求构建、错误分类和JSON解码
type httpClient struct {
	provider string
	baseURL  string
	headers  map[string]string
	client   *http.Client
}

// newHTTPClient 创建提供商HTTP客户端
func newHTTPClient(provider, baseURL string, headers map[string]string) *httpClient {
	return &httpClient{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		headers:  headers,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// endpoint 拼接请求地址
func (c *httpClient) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// getJSON 发送GET请求并解码JSON响应
func (c *httpClient) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, out)
}

// postJSON 发送JSON body的POST请求并解码JSON响应
func (c *httpClient) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	return c.doJSON(ctx, http.MethodPost, path, nil, body, out)
}

// doJSON 执行JSON请求
func (c *httpClient) doJSON(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return ClassifyError(c.provider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ClassifyError(c.provider, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ClassifyHTTPStatus(c.provider, resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ProviderError{
			Type:      ErrorTypeDataFormat,
			Code:      "DATA_FORMAT",
			Message:   fmt.Sprintf("failed to decode response: %v", err),
			Provider:  c.provider,
			Retryable: false,
			Cause:     err,
			Timestamp: time.Now(),
		}
	}
	return nil
}

// setHeader 更新请求头（用于token刷新后更新Authorization）
func (c *httpClient) setHeader(key, value string) {
	if c.headers == nil {
		c.headers = map[string]string{}
	}
	c.headers[key] = value
}
