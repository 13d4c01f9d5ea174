package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"

	"discovarr/internal/models"

	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// SettingDefault 设置项的默认定义
// Value为字符串编码的默认值，数据库行值为空时生效
type SettingDefault struct {
	Value       string
	Type        string
	Description string
	Required    bool
	Hidden      bool
}

// defaultSettings 各分组设置的默认定义
// 数据库只存放环境变量或用户写入的覆盖值，默认值始终留在代码里
var defaultSettings = map[string]map[string]SettingDefault{
	"app": {
		"default_prompt": {
			Value:       models.DefaultPromptTemplate,
			Type:        models.SettingTypeString,
			Description: "Default prompt template to use on the search page",
		},
		"recent_limit": {
			Value:       "10",
			Type:        models.SettingTypeInteger,
			Description: "Number of recent items to fetch",
		},
		"suggestion_limit": {
			Value:       "20",
			Type:        models.SettingTypeInteger,
			Description: "Maximum number of suggestions to return",
		},
		"auto_media_save": {
			Value:       "true",
			Type:        models.SettingTypeBoolean,
			Description: "Automatically save search results to the media table",
		},
		"system_prompt": {
			Value:       "You are a movie recommendation assistant. Your job is to suggest movies to users based on their preferences and current context.",
			Type:        models.SettingTypeString,
			Description: "Default system prompt to guide the model's behavior",
		},
	},
	"jellyfin": {
		"enabled": {
			Value:       "false",
			Type:        models.SettingTypeBoolean,
			Description: "Enable or disable Jellyfin integration",
		},
		"url": {
			Value:       "http://jellyfin:8096",
			Type:        models.SettingTypeURL,
			Description: "Jellyfin server URL",
			Required:    true,
		},
		"api_key": {
			Type:        models.SettingTypeString,
			Description: "Jellyfin API key",
			Required:    true,
		},
		"default_user": {
			Type:        models.SettingTypeString,
			Description: "Jellyfin default user for watch history and favorites, empty means all users",
		},
		"enable_media": {
			Value:       "true",
			Type:        models.SettingTypeBoolean,
			Description: "Include this provider's library in the {{all_media}} template variable",
		},
		"enable_history": {
			Value:       "true",
			Type:        models.SettingTypeBoolean,
			Description: "Sync watch history from this provider",
		},
	},
	"plex": {
		"enabled": {
			Value:       "false",
			Type:        models.SettingTypeBoolean,
			Description: "Enable or disable Plex integration",
		},
		"url": {
			Value:       "http://plex:32400",
			Type:        models.SettingTypeURL,
			Description: "Plex server URL",
			Required:    true,
		},
		"api_key": {
			Type:        models.SettingTypeString,
			Description: "Plex X-Plex-Token",
			Required:    true,
		},
		"default_user": {
			Type:        models.SettingTypeString,
			Description: "Plex default user for watch history and favorites, empty means all users",
		},
		"enable_media": {
			Value:       "true",
			Type:        models.SettingTypeBoolean,
			Description: "Include this provider's library in the {{all_media}} template variable",
		},
		"enable_history": {
			Value:       "true",
			Type:        models.SettingTypeBoolean,
			Description: "Sync watch history from this provider",
		},
	},
	"trakt": {
		"enabled": {
			Value:       "false",
			Type:        models.SettingTypeBoolean,
			Description: "Enable or disable Trakt integration",
		},
		"client_id": {
			Type:        models.SettingTypeString,
			Description: "Trakt client ID",
			Required:    true,
		},
		"client_secret": {
			Type:        models.SettingTypeString,
			Description: "Trakt client secret",
			Required:    true,
		},
		"default_user": {
			Type:        models.SettingTypeString,
			Description: "Trakt default user for watch history and favorites, empty means the authorized account",
		},
		"authorization": {
			Type:        models.SettingTypeString,
			Description: "Trakt authorization token, managed by the device flow",
			Hidden:      true,
		},
		"redirect_uri": {
			Value:       "urn:ietf:wg:oauth:2.0:oob",
			Type:        models.SettingTypeString,
			Description: "Trakt OAuth redirect URI, the out-of-band value is used for device auth",
		},
		"enable_media": {
			Value:       "false",
			Type:        models.SettingTypeBoolean,
			Description: "Not available for this provider",
		},
		"enable_history": {
			Value:       "true",
			Type:        models.SettingTypeBoolean,
			Description: "Sync watch history from this provider",
		},
	},
	"gemini": {
		"enabled": {
			Value:       "false",
			Type:        models.SettingTypeBoolean,
			Description: "Enable or disable Gemini integration",
		},
		"api_key": {
			Type:        models.SettingTypeString,
			Description: "Gemini API key",
			Required:    true,
		},
		"model": {
			Value:       "gemini-2.5-flash-preview-05-20",
			Type:        models.SettingTypeString,
			Description: "Gemini model name",
		},
		"thinking_budget": {
			Value:       "1024",
			Type:        models.SettingTypeFloat,
			Description: "Gemini thinking budget, 0 to disable, min 1024 if enabled, max 24576",
		},
		"temperature": {
			Value:       "0.7",
			Type:        models.SettingTypeFloat,
			Description: "Gemini sampling temperature, values range from 0.0 to 2.0",
		},
	},
	"ollama": {
		"enabled": {
			Value:       "false",
			Type:        models.SettingTypeBoolean,
			Description: "Enable or disable Ollama integration",
		},
		"base_url": {
			Value:       "http://ollama:11434",
			Type:        models.SettingTypeURL,
			Description: "Ollama server base URL",
			Required:    true,
		},
		"model": {
			Value:       "llama3",
			Type:        models.SettingTypeString,
			Description: "Ollama model name",
		},
		"temperature": {
			Value:       "0.7",
			Type:        models.SettingTypeFloat,
			Description: "Ollama sampling temperature, higher values mean more random output",
		},
	},
	"openai": {
		"enabled": {
			Value:       "false",
			Type:        models.SettingTypeBoolean,
			Description: "Enable or disable OpenAI integration",
		},
		"api_key": {
			Type:        models.SettingTypeString,
			Description: "OpenAI API key",
			Required:    true,
		},
		"base_url": {
			Value:       "https://api.openai.com/v1",
			Type:        models.SettingTypeURL,
			Description: "OpenAI compatible API base URL",
			Required:    true,
		},
		"model": {
			Value:       "gpt-4.1-mini",
			Type:        models.SettingTypeString,
			Description: "OpenAI model name",
		},
		"temperature": {
			Value:       "0.7",
			Type:        models.SettingTypeFloat,
			Description: "OpenAI sampling temperature, values range from 0.0 to 2.0",
		},
	},
}

// SettingView 设置项的对外视图，聚合默认定义与数据库覆盖值
type SettingView struct {
	Value       interface{} `json:"value"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
}

// SettingsService 设置服务接口
type SettingsService interface {
	// 初始化设置，缺失的行按默认定义创建，环境变量{GROUP}_{NAME}优先作为初始值
	Initialize(ctx context.Context) error

	// 读取生效值，数据库行值为空时回落到代码内默认值
	Get(ctx context.Context, group, name string) (string, error)

	// 按布尔读取生效值
	GetBool(ctx context.Context, group, name string) (bool, error)

	// 按整数读取生效值
	GetInt(ctx context.Context, group, name string) (int, error)

	// 按浮点数读取生效值
	GetFloat(ctx context.Context, group, name string) (float64, error)

	// 写入设置值，按行类型校验
	Set(ctx context.Context, group, name, value string) error

	// 获取全部设置的分组视图，隐藏项不出现在结果中
	GetAll(ctx context.Context) (map[string]map[string]*SettingView, error)

	// 获取单个分组的生效值
	GetGroup(ctx context.Context, group string) (map[string]interface{}, error)

	// 读取持久化的trakt授权令牌，未授权时返回nil
	TraktToken(ctx context.Context) (*oauth2.Token, error)

	// 持久化trakt授权令牌
	SaveTraktToken(ctx context.Context, token *oauth2.Token) error
}

// SettingsServiceImpl 设置服务实现
type SettingsServiceImpl struct {
	db *gorm.DB
}

// NewSettingsService 创建设置服务
func NewSettingsService(db *gorm.DB) SettingsService {
	return &SettingsServiceImpl{db: db}
}

// Initialize 初始化设置行
// 只创建缺失的行，已存在的行不被触碰，默认值不落库
func (s *SettingsServiceImpl) Initialize(ctx context.Context) error {
	for _, group := range sortedGroups() {
		names := make([]string, 0, len(defaultSettings[group]))
		for name := range defaultSettings[group] {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			def := defaultSettings[group][name]

			var existing models.Setting
			err := s.db.WithContext(ctx).
				Where("\"group\" = ? AND name = ?", group, name).
				First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to query setting %s.%s: %w", group, name, err)
			}

			envKey := strings.ToUpper(group + "_" + name)
			envValue := os.Getenv(envKey)

			setting := &models.Setting{
				Group:       group,
				Name:        name,
				Value:       envValue,
				Type:        def.Type,
				Description: def.Description,
			}
			if err := s.db.WithContext(ctx).Create(setting).Error; err != nil {
				return fmt.Errorf("failed to create setting %s.%s: %w", group, name, err)
			}
			if envValue != "" {
				log.Printf("Created setting %s.%s from environment variable %s", group, name, envKey)
			} else {
				log.Printf("Created setting %s.%s", group, name)
			}
		}
	}
	return nil
}

// Get 读取生效的字符串值
func (s *SettingsServiceImpl) Get(ctx context.Context, group, name string) (string, error) {
	def, ok := defaultFor(group, name)
	if !ok {
		return "", fmt.Errorf("unknown setting %s.%s", group, name)
	}

	var setting models.Setting
	err := s.db.WithContext(ctx).
		Where("\"group\" = ? AND name = ?", group, name).
		First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return def.Value, nil
		}
		return "", fmt.Errorf("failed to query setting %s.%s: %w", group, name, err)
	}
	if setting.Value == "" {
		return def.Value, nil
	}
	return setting.Value, nil
}

// GetBool 读取生效的布尔值
func (s *SettingsServiceImpl) GetBool(ctx context.Context, group, name string) (bool, error) {
	raw, err := s.Get(ctx, group, name)
	if err != nil {
		return false, err
	}
	if raw == "" {
		return false, nil
	}
	v, ok := parseBool(raw)
	if !ok {
		return false, fmt.Errorf("setting %s.%s is not a boolean: %q", group, name, raw)
	}
	return v, nil
}

// GetInt 读取生效的整数值
func (s *SettingsServiceImpl) GetInt(ctx context.Context, group, name string) (int, error) {
	raw, err := s.Get(ctx, group, name)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("setting %s.%s is not an integer: %q", group, name, raw)
	}
	return v, nil
}

// GetFloat 读取生效的浮点数值
func (s *SettingsServiceImpl) GetFloat(ctx context.Context, group, name string) (float64, error) {
	raw, err := s.Get(ctx, group, name)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("setting %s.%s is not a float: %q", group, name, raw)
	}
	return v, nil
}

// Set 写入设置值
// 行必须已经存在，值按行上记录的类型校验后原样存储
func (s *SettingsServiceImpl) Set(ctx context.Context, group, name, value string) error {
	var setting models.Setting
	err := s.db.WithContext(ctx).
		Where("\"group\" = ? AND name = ?", group, name).
		First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("setting %s.%s not found", group, name)
		}
		return fmt.Errorf("failed to query setting %s.%s: %w", group, name, err)
	}

	if err := validateValue(value, setting.Type); err != nil {
		return fmt.Errorf("invalid value for setting %s.%s: %w", group, name, err)
	}

	setting.Value = value
	if err := s.db.WithContext(ctx).Save(&setting).Error; err != nil {
		return fmt.Errorf("failed to update setting %s.%s: %w", group, name, err)
	}
	log.Printf("Updated setting %s.%s", group, name)
	return nil
}

// GetAll 获取全部设置的分组视图
func (s *SettingsServiceImpl) GetAll(ctx context.Context) (map[string]map[string]*SettingView, error) {
	var rows []*models.Setting
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	stored := make(map[string]string, len(rows))
	for _, row := range rows {
		stored[row.Group+"."+row.Name] = row.Value
	}

	result := make(map[string]map[string]*SettingView, len(defaultSettings))
	for _, group := range sortedGroups() {
		views := make(map[string]*SettingView, len(defaultSettings[group]))
		for name, def := range defaultSettings[group] {
			if def.Hidden {
				continue
			}
			raw := def.Value
			if v, ok := stored[group+"."+name]; ok && v != "" {
				raw = v
			}
			value, err := convertValue(raw, def.Type)
			if err != nil {
				return nil, fmt.Errorf("setting %s.%s has invalid stored value: %w", group, name, err)
			}
			views[name] = &SettingView{
				Value:       value,
				Type:        def.Type,
				Description: def.Description,
				Required:    def.Required,
			}
		}
		result[group] = views
	}
	return result, nil
}

// GetGroup 获取单个分组的生效值
func (s *SettingsServiceImpl) GetGroup(ctx context.Context, group string) (map[string]interface{}, error) {
	defs, ok := defaultSettings[group]
	if !ok {
		return nil, fmt.Errorf("unknown settings group %s: %w", group, ErrNotFound)
	}

	result := make(map[string]interface{}, len(defs))
	for name, def := range defs {
		raw, err := s.Get(ctx, group, name)
		if err != nil {
			return nil, err
		}
		value, err := convertValue(raw, def.Type)
		if err != nil {
			return nil, fmt.Errorf("setting %s.%s has invalid stored value: %w", group, name, err)
		}
		result[name] = value
	}
	return result, nil
}

// TraktToken 读取持久化的trakt授权令牌
func (s *SettingsServiceImpl) TraktToken(ctx context.Context) (*oauth2.Token, error) {
	raw, err := s.Get(ctx, "trakt", "authorization")
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	var token oauth2.Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, fmt.Errorf("failed to decode trakt authorization: %w", err)
	}
	return &token, nil
}

// SaveTraktToken 持久化trakt授权令牌
func (s *SettingsServiceImpl) SaveTraktToken(ctx context.Context, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode trakt authorization: %w", err)
	}
	return s.Set(ctx, "trakt", "authorization", string(data))
}

// sortedGroups 返回按字母序排列的分组名
func sortedGroups() []string {
	groups := make([]string, 0, len(defaultSettings))
	for group := range defaultSettings {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	return groups
}

// defaultFor 查找设置项的默认定义
func defaultFor(group, name string) (SettingDefault, bool) {
	defs, ok := defaultSettings[group]
	if !ok {
		return SettingDefault{}, false
	}
	def, ok := defs[name]
	return def, ok
}

// parseBool 解析布尔字符串，接受true/false/1/0/t/f/y/n/yes/no
func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(raw) {
	case "true", "1", "t", "y", "yes":
		return true, true
	case "false", "0", "f", "n", "no":
		return false, true
	default:
		return false, false
	}
}

// validateValue 校验值是否符合设置类型，空值对任何类型都合法
func validateValue(value, settingType string) error {
	if value == "" {
		return nil
	}
	switch settingType {
	case models.SettingTypeInteger:
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("not an integer: %q", value)
		}
	case models.SettingTypeBoolean:
		if _, ok := parseBool(value); !ok {
			return fmt.Errorf("not a boolean: %q", value)
		}
	case models.SettingTypeURL:
		u, err := url.Parse(value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("not a valid URL: %q", value)
		}
	case models.SettingTypeFloat:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("not a float: %q", value)
		}
	}
	return nil
}

// convertValue 将存储的字符串按类型转换，空字符串转换为类型零值
func convertValue(raw, settingType string) (interface{}, error) {
	switch settingType {
	case models.SettingTypeInteger:
		if raw == "" {
			return 0, nil
		}
		return strconv.Atoi(raw)
	case models.SettingTypeBoolean:
		if raw == "" {
			return false, nil
		}
		v, ok := parseBool(raw)
		if !ok {
			return nil, fmt.Errorf("not a boolean: %q", raw)
		}
		return v, nil
	case models.SettingTypeFloat:
		if raw == "" {
			return 0.0, nil
		}
		return strconv.ParseFloat(raw, 64)
	default:
		return raw, nil
	}
}
