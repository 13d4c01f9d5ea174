package providers

import (
	"fmt"
	"sort"

	"golang.org/x/oauth2"
)

// ProviderConfig 构造提供商所需的连接配置
// 值来自settings表，按提供商类型取用相应字段
type ProviderConfig struct {
	URL          string
	APIKey       string
	BaseURL      string
	ClientID     string
	ClientSecret string
	Token        *oauth2.Token

	// OnTokenRefresh 在OAuth令牌获取或刷新后被调用，用于持久化新令牌
	OnTokenRefresh TraktTokenCallback
}

// Factory 提供商工厂
// 按名称注册构造函数，配置加载时一次性选定实现
type Factory struct {
	library map[string]func(ProviderConfig) LibraryProvider
	llm     map[string]func(ProviderConfig) LLMProvider
}

// NewFactory 创建提供商工厂并注册内置提供商
func NewFactory() *Factory {
	factory := &Factory{
		library: make(map[string]func(ProviderConfig) LibraryProvider),
		llm:     make(map[string]func(ProviderConfig) LLMProvider),
	}

	// 注册内置媒体库提供商
	factory.RegisterLibraryProvider("jellyfin", func(cfg ProviderConfig) LibraryProvider {
		return NewJellyfinProvider(cfg.URL, cfg.APIKey)
	})
	factory.RegisterLibraryProvider("plex", func(cfg ProviderConfig) LibraryProvider {
		return NewPlexProvider(cfg.URL, cfg.APIKey)
	})
	factory.RegisterLibraryProvider("trakt", func(cfg ProviderConfig) LibraryProvider {
		provider := NewTraktProvider(cfg.ClientID, cfg.ClientSecret, cfg.Token)
		if cfg.OnTokenRefresh != nil {
			provider.SetTokenCallback(cfg.OnTokenRefresh)
		}
		return provider
	})

	// 注册内置大模型提供商
	factory.RegisterLLMProvider("gemini", func(cfg ProviderConfig) LLMProvider {
		return NewGeminiProvider(cfg.APIKey)
	})
	factory.RegisterLLMProvider("ollama", func(cfg ProviderConfig) LLMProvider {
		return NewOllamaProvider(cfg.BaseURL)
	})
	factory.RegisterLLMProvider("openai", func(cfg ProviderConfig) LLMProvider {
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL)
	})

	return factory
}

// RegisterLibraryProvider 注册媒体库提供商
func (f *Factory) RegisterLibraryProvider(name string, constructor func(ProviderConfig) LibraryProvider) {
	f.library[name] = constructor
}

// RegisterLLMProvider 注册大模型提供商
func (f *Factory) RegisterLLMProvider(name string, constructor func(ProviderConfig) LLMProvider) {
	f.llm[name] = constructor
}

// CreateLibraryProvider 创建媒体库提供商实例
func (f *Factory) CreateLibraryProvider(name string, cfg ProviderConfig) (LibraryProvider, error) {
	constructor, exists := f.library[name]
	if !exists {
		return nil, fmt.Errorf("unknown library provider: %s", name)
	}
	return constructor(cfg), nil
}

// CreateLLMProvider 创建大模型提供商实例
func (f *Factory) CreateLLMProvider(name string, cfg ProviderConfig) (LLMProvider, error) {
	constructor, exists := f.llm[name]
	if !exists {
		return nil, fmt.Errorf("unknown llm provider: %s", name)
	}
	return constructor(cfg), nil
}

// AvailableLibraryProviders 获取已注册的媒体库提供商名称
func (f *Factory) AvailableLibraryProviders() []string {
	names := make([]string, 0, len(f.library))
	for name := range f.library {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AvailableLLMProviders 获取已注册的大模型提供商名称
func (f *Factory) AvailableLLMProviders() []string {
	names := make([]string, 0, len(f.llm))
	for name := range f.llm {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
