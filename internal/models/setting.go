package models

// 设置项的值类型
const (
	SettingTypeString  = "STRING"
	SettingTypeInteger = "INTEGER"
	SettingTypeBoolean = "BOOLEAN"
	SettingTypeURL     = "URL"
	SettingTypeFloat   = "FLOAT"
)

// Setting 设置项模型
// 以(group, name)唯一定位，值统一存为文本，类型字段指导解析
type Setting struct {
	BaseModel
	Group       string `gorm:"column:group;not null;uniqueIndex:idx_settings_group_name" json:"group"`
	Name        string `gorm:"not null;uniqueIndex:idx_settings_group_name" json:"name"`
	Value       string `gorm:"type:text" json:"value"`
	Type        string `json:"type"` // STRING/INTEGER/BOOLEAN/URL/FLOAT
	Description string `gorm:"type:text" json:"description"`
}

// TableName 指定表名
func (Setting) TableName() string {
	return "settings"
}
