package intent

import (
	"encoding/json"
	"math"
	"strings"
)

type rawParams struct {
	Count          *float64 `json:"count"`
	Sender         string   `json:"sender"`
	SubjectKeyword string   `json:"subject_keyword"`
	EmailNumber    *float64 `json:"email_number"`
	ReplyContent   string   `json:"reply_content"`
}

// rawIntent 同时接受扁平结构和 {action, params:{...}} 两种形状
type rawIntent struct {
	Action string     `json:"action"`
	Params *rawParams `json:"params"`
	rawParams
}

// Parse 把模型输出解析为 Intent。任何格式问题都降级为 Unknown，不返回错误
func Parse(output string, defaultCount, maxCount int) Intent {
	body := stripFences(output)
	if body == "" {
		return Unknown{}
	}

	var raw rawIntent
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Unknown{}
	}

	p := raw.rawParams
	if raw.Params != nil {
		p = *raw.Params
	}

	target := Target{
		Sender:         strings.TrimSpace(p.Sender),
		SubjectKeyword: strings.TrimSpace(p.SubjectKeyword),
	}

	switch Action(strings.ToLower(strings.TrimSpace(raw.Action))) {
	case ActionRead:
		return Read{Count: clampCount(p.Count, defaultCount, maxCount)}
	case ActionRespond:
		return Respond{
			Target:       target,
			ReplyContent: strings.TrimSpace(p.ReplyContent),
			EmailNumber:  positiveInt(p.EmailNumber),
		}
	case ActionDelete:
		return Delete{
			Target:      target,
			EmailNumber: positiveInt(p.EmailNumber),
		}
	default:
		return Unknown{}
	}
}

// stripFences 去掉 ```json ... ``` 包裹以及 JSON 对象前后的多余文字
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

func clampCount(v *float64, defaultCount, maxCount int) int {
	n := defaultCount
	if v != nil && !math.IsNaN(*v) {
		n = int(*v)
	}
	if n < 1 {
		n = defaultCount
	}
	if maxCount > 0 && n > maxCount {
		n = maxCount
	}
	if n < 1 {
		n = 1
	}
	return n
}

func positiveInt(v *float64) int {
	if v == nil || *v < 1 {
		return 0
	}
	return int(*v)
}
