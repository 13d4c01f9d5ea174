package services

import (
	"context"
	"fmt"
	"log"

	"discovarr/internal/providers"

	"golang.org/x/oauth2"
)

// LibraryBinding 一个启用的媒体库提供商实例及其同步开关
type LibraryBinding struct {
	Name          string
	Provider      providers.LibraryProvider
	DefaultUser   string
	EnableHistory bool
	EnableMedia   bool
}

// LLMBinding 一个启用的大模型提供商实例及其生成参数
type LLMBinding struct {
	Name           string
	Provider       providers.LLMProvider
	Model          string
	Temperature    float64
	ThinkingBudget float64
}

// ProviderGateway 按当前设置装配提供商实例
// 每次调用都重新读取设置，配置变更无需重启即可生效
type ProviderGateway struct {
	settings SettingsService
	factory  *providers.Factory
}

// NewProviderGateway 创建提供商装配器
func NewProviderGateway(settings SettingsService, factory *providers.Factory) *ProviderGateway {
	return &ProviderGateway{settings: settings, factory: factory}
}

// LibraryProviders 返回所有启用且配置完整的媒体库提供商
func (g *ProviderGateway) LibraryProviders(ctx context.Context) ([]*LibraryBinding, error) {
	var bindings []*LibraryBinding
	for _, name := range g.factory.AvailableLibraryProviders() {
		binding, err := g.LibraryProvider(ctx, name)
		if err != nil {
			return nil, err
		}
		if binding != nil {
			bindings = append(bindings, binding)
		}
	}
	return bindings, nil
}

// LibraryProvider 装配单个媒体库提供商，未启用或配置不完整时返回nil
func (g *ProviderGateway) LibraryProvider(ctx context.Context, name string) (*LibraryBinding, error) {
	enabled, err := g.settings.GetBool(ctx, name, "enabled")
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, nil
	}

	cfg, ok, err := g.libraryConfig(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Printf("Provider %s is enabled but not fully configured, skipping", name)
		return nil, nil
	}

	provider, err := g.factory.CreateLibraryProvider(name, cfg)
	if err != nil {
		return nil, err
	}

	defaultUser, err := g.settings.Get(ctx, name, "default_user")
	if err != nil {
		return nil, err
	}
	enableHistory, err := g.settings.GetBool(ctx, name, "enable_history")
	if err != nil {
		return nil, err
	}
	enableMedia, err := g.settings.GetBool(ctx, name, "enable_media")
	if err != nil {
		return nil, err
	}

	return &LibraryBinding{
		Name:          name,
		Provider:      provider,
		DefaultUser:   defaultUser,
		EnableHistory: enableHistory,
		EnableMedia:   enableMedia,
	}, nil
}

// LLMProviders 返回所有启用且配置完整的大模型提供商，按名称排序
func (g *ProviderGateway) LLMProviders(ctx context.Context) ([]*LLMBinding, error) {
	var bindings []*LLMBinding
	for _, name := range g.factory.AvailableLLMProviders() {
		enabled, err := g.settings.GetBool(ctx, name, "enabled")
		if err != nil {
			return nil, err
		}
		if !enabled {
			continue
		}

		cfg, ok, err := g.llmConfig(ctx, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			log.Printf("Provider %s is enabled but not fully configured, skipping", name)
			continue
		}

		model, err := g.settings.Get(ctx, name, "model")
		if err != nil {
			return nil, err
		}
		if model == "" {
			log.Printf("Provider %s is enabled but its model is not configured, skipping", name)
			continue
		}

		temperature, err := g.settings.GetFloat(ctx, name, "temperature")
		if err != nil {
			return nil, err
		}

		binding := &LLMBinding{
			Name:        name,
			Model:       model,
			Temperature: temperature,
		}
		if name == "gemini" {
			budget, err := g.settings.GetFloat(ctx, name, "thinking_budget")
			if err != nil {
				return nil, err
			}
			binding.ThinkingBudget = budget
		}

		provider, err := g.factory.CreateLLMProvider(name, cfg)
		if err != nil {
			return nil, err
		}
		binding.Provider = provider
		bindings = append(bindings, binding)
	}
	return bindings, nil
}

// libraryConfig 组装媒体库提供商的连接配置，返回配置是否完整
func (g *ProviderGateway) libraryConfig(ctx context.Context, name string) (providers.ProviderConfig, bool, error) {
	var cfg providers.ProviderConfig
	switch name {
	case "jellyfin", "plex":
		url, err := g.settings.Get(ctx, name, "url")
		if err != nil {
			return cfg, false, err
		}
		apiKey, err := g.settings.Get(ctx, name, "api_key")
		if err != nil {
			return cfg, false, err
		}
		cfg.URL = url
		cfg.APIKey = apiKey
		return cfg, url != "" && apiKey != "", nil
	case "trakt":
		clientID, err := g.settings.Get(ctx, "trakt", "client_id")
		if err != nil {
			return cfg, false, err
		}
		clientSecret, err := g.settings.Get(ctx, "trakt", "client_secret")
		if err != nil {
			return cfg, false, err
		}
		token, err := g.settings.TraktToken(ctx)
		if err != nil {
			return cfg, false, err
		}
		cfg.ClientID = clientID
		cfg.ClientSecret = clientSecret
		cfg.Token = token
		cfg.OnTokenRefresh = func(token *oauth2.Token) error {
			return g.settings.SaveTraktToken(context.Background(), token)
		}
		return cfg, clientID != "" && clientSecret != "", nil
	default:
		return cfg, false, fmt.Errorf("unknown library provider: %s", name)
	}
}

// llmConfig 组装大模型提供商的连接配置，返回配置是否完整
func (g *ProviderGateway) llmConfig(ctx context.Context, name string) (providers.ProviderConfig, bool, error) {
	var cfg providers.ProviderConfig
	switch name {
	case "gemini":
		apiKey, err := g.settings.Get(ctx, "gemini", "api_key")
		if err != nil {
			return cfg, false, err
		}
		cfg.APIKey = apiKey
		return cfg, apiKey != "", nil
	case "ollama":
		baseURL, err := g.settings.Get(ctx, "ollama", "base_url")
		if err != nil {
			return cfg, false, err
		}
		cfg.BaseURL = baseURL
		return cfg, baseURL != "", nil
	case "openai":
		apiKey, err := g.settings.Get(ctx, "openai", "api_key")
		if err != nil {
			return cfg, false, err
		}
		baseURL, err := g.settings.Get(ctx, "openai", "base_url")
		if err != nil {
			return cfg, false, err
		}
		cfg.APIKey = apiKey
		cfg.BaseURL = baseURL
		return cfg, apiKey != "", nil
	default:
		return cfg, false, fmt.Errorf("unknown llm provider: %s", name)
	}
}
