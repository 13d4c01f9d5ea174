package models

import (
	"encoding/json"
	"time"
)

// DefaultPromptTemplate 推荐提示词模板的出厂默认值
// {{media_name}}、{{limit}}、{{all_media}}在运行时展开
const DefaultPromptTemplate = "Recommend {{limit}} tv series or movies similar to {{media_name}}. " +
	"\n\nExclude the following media from your recommendations: {{all_media}}"

// Search 保存的推荐搜索
// prompt是完整的提示词模板，kwargs以JSON字符串保存附加参数
type Search struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	Name        string     `gorm:"not null" json:"name"`
	Prompt      string     `gorm:"not null;type:text" json:"prompt"`
	Kwargs      string     `json:"kwargs"`
	LastRunDate *time.Time `json:"last_run_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TableName 指定表名
func (Search) TableName() string {
	return "searches"
}

// GetKwargs 解析附加参数
func (s *Search) GetKwargs() (map[string]interface{}, error) {
	if s.Kwargs == "" {
		return map[string]interface{}{}, nil
	}

	var kwargs map[string]interface{}
	err := json.Unmarshal([]byte(s.Kwargs), &kwargs)
	return kwargs, err
}

// SetKwargs 设置附加参数
func (s *Search) SetKwargs(kwargs map[string]interface{}) error {
	data, err := json.Marshal(kwargs)
	if err != nil {
		return err
	}
	s.Kwargs = string(data)
	return nil
}

// MarkRun 记录一次执行时间
func (s *Search) MarkRun() {
	now := time.Now()
	s.LastRunDate = &now
}
