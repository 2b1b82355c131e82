package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration 支持 JSON 字符串或秒数的时长
//
// 支持的格式:
//   - 字符串: "2h", "90m", "30s" 等
//   - 数字: 秒数，与 NAT-PMP 租期字段的单位一致
//
//	// JSON: {"lifetime": "2h"} 或 {"lifetime": 7200}
type Duration time.Duration

// UnmarshalJSON 实现 json.Unmarshaler 接口
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		duration, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration string %q: %w", s, err)
		}
		*d = Duration(duration)
		return nil
	}

	var secs int64
	if err := json.Unmarshal(data, &secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	return fmt.Errorf("duration must be a string (e.g., \"2h\") or a number of seconds")
}

// MarshalJSON 输出为 "2h0m0s" 形式
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Duration 返回底层的 time.Duration 值
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String 返回字符串表示
func (d Duration) String() string {
	return time.Duration(d).String()
}
