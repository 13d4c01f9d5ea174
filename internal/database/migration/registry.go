package migration

import (
	"fmt"
	"sort"
	"strings"
)

// Discover 校验并排序编译期注册的迁移单元
// 对同一份单元列表每次调用产出相同的升序结果。
// 版本号重复或名称无法解析出数字前缀时整体失败，
// 返回DiscoveryError而不是静默挑选其中一个。
func Discover(units []*Unit) ([]Entry, error) {
	entries := make([]Entry, 0, len(units))
	seen := make(map[int]string, len(units))

	for _, u := range units {
		version, err := parseVersion(u.Name)
		if err != nil {
			return nil, &DiscoveryError{Name: u.Name, Reason: err.Error()}
		}
		if prev, ok := seen[version]; ok {
			return nil, &DiscoveryError{
				Name:   u.Name,
				Reason: fmt.Sprintf("version %d already used by %q", version, prev),
			}
		}
		seen[version] = u.Name
		entries = append(entries, Entry{Version: version, Unit: u})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Version < entries[j].Version
	})
	return entries, nil
}

// parseVersion 从单元名解析数字前缀
// 接受"001_init"或纯数字"7"，前缀必须是正整数
func parseVersion(name string) (int, error) {
	token := name
	if i := strings.IndexByte(name, '_'); i >= 0 {
		token = name[:i]
	}
	if token == "" {
		return 0, fmt.Errorf("no version prefix in %q", name)
	}

	version := 0
	for _, r := range token {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("version prefix %q is not numeric", token)
		}
		version = version*10 + int(r-'0')
		if version > 1<<30 {
			return 0, fmt.Errorf("version prefix %q is out of range", token)
		}
	}
	if version <= 0 {
		return 0, fmt.Errorf("version must be a positive integer, got %q", token)
	}
	return version, nil
}
