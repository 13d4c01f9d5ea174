package models

import (
	"encoding/json"
)

// Schedule 定时任务模型
// cron风格的字段为空表示通配，args/kwargs以JSON字符串保存
type Schedule struct {
	BaseModel
	SearchID  *uint  `gorm:"index" json:"search_id,omitempty"`
	JobID     string `gorm:"not null;uniqueIndex" json:"job_id"`
	FuncName  string `gorm:"not null" json:"func_name"`
	Year      string `json:"year"`
	Month     string `json:"month"`
	Hour      *int   `json:"hour,omitempty"`
	Minute    *int   `json:"minute,omitempty"`
	Day       string `json:"day"`
	DayOfWeek string `json:"day_of_week"`
	Args      string `json:"args"`
	Kwargs    string `json:"kwargs"`
	Enabled   bool   `gorm:"not null;default:true" json:"enabled"`
}

// TableName 指定表名
func (Schedule) TableName() string {
	return "schedules"
}

// GetKwargs 解析关键字参数
func (s *Schedule) GetKwargs() (map[string]interface{}, error) {
	if s.Kwargs == "" {
		return map[string]interface{}{}, nil
	}

	var kwargs map[string]interface{}
	err := json.Unmarshal([]byte(s.Kwargs), &kwargs)
	return kwargs, err
}

// SetKwargs 设置关键字参数
func (s *Schedule) SetKwargs(kwargs map[string]interface{}) error {
	data, err := json.Marshal(kwargs)
	if err != nil {
		return err
	}
	s.Kwargs = string(data)
	return nil
}
