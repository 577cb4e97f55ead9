package llm

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"ai-gateway-api/internal/domain/entity"
)

// ExtractJSONObject 从模型输出中截取第一个 JSON 对象，容忍代码块围栏和前后说明文字
// 找不到对象时返回空串
func ExtractJSONObject(s string) string {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimPrefix(raw, "json")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
		raw = strings.TrimSpace(raw)
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	raw = raw[start : end+1]

	dec := json.NewDecoder(strings.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return ""
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return ""
	}
	return raw
}

// parseCompletion 能解析为 JSON 对象时返回结构化结果，否则以文本返回
func parseCompletion(t entity.AnalysisType, content, model string, usage entity.TokenUsage, at time.Time) *entity.AnalysisResult {
	if obj := ExtractJSONObject(content); obj != "" {
		var data map[string]any
		dec := json.NewDecoder(bytes.NewReader([]byte(obj)))
		if err := dec.Decode(&data); err == nil && data != nil {
			return entity.NewStructuredResult(t, data, model, usage, at)
		}
	}
	return entity.NewTextResult(t, strings.TrimSpace(content), model, usage, at)
}
