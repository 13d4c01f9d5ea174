package services

import (
	"context"
	"testing"

	"discovarr/internal/providers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupGateway(t *testing.T) (SettingsService, *providers.Factory, *ProviderGateway) {
	t.Helper()
	settings := setupSettingsService(t)
	factory := providers.NewFactory()
	return settings, factory, NewProviderGateway(settings, factory)
}

func TestProviderGatewayLibrary(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	t.Run("默认全部禁用", func(t *testing.T) {
		_, _, gateway := setupGateway(t)

		bindings, err := gateway.LibraryProviders(context.Background())
		require.NoError(t, err)
		assert.Empty(t, bindings)
	})

	t.Run("启用但缺少必填配置时跳过", func(t *testing.T) {
		settings, _, gateway := setupGateway(t)
		ctx := context.Background()

		// url有默认值，api_key仍然为空
		require.NoError(t, settings.Set(ctx, "jellyfin", "enabled", "true"))

		binding, err := gateway.LibraryProvider(ctx, "jellyfin")
		require.NoError(t, err)
		assert.Nil(t, binding)
	})

	t.Run("配置完整时装配实例", func(t *testing.T) {
		settings, _, gateway := setupGateway(t)
		ctx := context.Background()

		require.NoError(t, settings.Set(ctx, "jellyfin", "enabled", "true"))
		require.NoError(t, settings.Set(ctx, "jellyfin", "api_key", "secret"))
		require.NoError(t, settings.Set(ctx, "jellyfin", "default_user", "alice"))
		require.NoError(t, settings.Set(ctx, "jellyfin", "enable_history", "false"))

		bindings, err := gateway.LibraryProviders(ctx)
		require.NoError(t, err)
		require.Len(t, bindings, 1)

		binding := bindings[0]
		assert.Equal(t, "jellyfin", binding.Name)
		assert.Equal(t, "jellyfin", binding.Provider.Name())
		assert.Equal(t, "alice", binding.DefaultUser)
		assert.False(t, binding.EnableHistory)
		assert.True(t, binding.EnableMedia)
	})

	t.Run("未知提供商名报错", func(t *testing.T) {
		_, _, gateway := setupGateway(t)

		_, err := gateway.LibraryProvider(context.Background(), "emby")
		assert.Error(t, err)
	})
}

func TestProviderGatewayLLM(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	t.Run("启用ollama后返回绑定", func(t *testing.T) {
		settings, _, gateway := setupGateway(t)
		ctx := context.Background()

		require.NoError(t, settings.Set(ctx, "ollama", "enabled", "true"))

		bindings, err := gateway.LLMProviders(ctx)
		require.NoError(t, err)
		require.Len(t, bindings, 1)

		binding := bindings[0]
		assert.Equal(t, "ollama", binding.Name)
		assert.Equal(t, "ollama", binding.Provider.Name())
		assert.Equal(t, "llama3", binding.Model)
		assert.Equal(t, 0.7, binding.Temperature)
		assert.Zero(t, binding.ThinkingBudget)
	})

	t.Run("gemini携带思考预算", func(t *testing.T) {
		settings, _, gateway := setupGateway(t)
		ctx := context.Background()

		require.NoError(t, settings.Set(ctx, "gemini", "enabled", "true"))
		require.NoError(t, settings.Set(ctx, "gemini", "api_key", "key"))

		bindings, err := gateway.LLMProviders(ctx)
		require.NoError(t, err)
		require.Len(t, bindings, 1)
		assert.Equal(t, "gemini", bindings[0].Name)
		assert.Equal(t, float64(1024), bindings[0].ThinkingBudget)
	})

	t.Run("缺少api_key的提供商被跳过", func(t *testing.T) {
		settings, _, gateway := setupGateway(t)
		ctx := context.Background()

		require.NoError(t, settings.Set(ctx, "openai", "enabled", "true"))

		bindings, err := gateway.LLMProviders(ctx)
		require.NoError(t, err)
		assert.Empty(t, bindings)
	})

	t.Run("多个启用时按名称排序", func(t *testing.T) {
		settings, _, gateway := setupGateway(t)
		ctx := context.Background()

		require.NoError(t, settings.Set(ctx, "ollama", "enabled", "true"))
		require.NoError(t, settings.Set(ctx, "gemini", "enabled", "true"))
		require.NoError(t, settings.Set(ctx, "gemini", "api_key", "key"))

		bindings, err := gateway.LLMProviders(ctx)
		require.NoError(t, err)
		require.Len(t, bindings, 2)
		assert.Equal(t, "gemini", bindings[0].Name)
		assert.Equal(t, "ollama", bindings[1].Name)
	})
}
