package entity

import (
	"sort"
	"time"
)

// ModelInfo 模型目录条目
type ModelInfo struct {
	MaxTokens       int     `json:"max_tokens"`
	InputCostPer1K  float64 `json:"input_cost_per_1k"`
	OutputCostPer1K float64 `json:"output_cost_per_1k"`
	IsDefault       bool    `json:"is_default"`
}

// Capabilities 提供方能力标记
type Capabilities struct {
	StructuredOutput bool `json:"structured_output"`
	Conversation     bool `json:"conversation"`
	Networked        bool `json:"networked"`
}

// ProviderDescriptor 提供方描述
type ProviderDescriptor struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Models       map[string]ModelInfo `json:"models"`
	Capabilities Capabilities         `json:"capabilities"`
}

// DefaultModel 返回标记为默认的模型，没有标记时取字典序最小的模型
func (d ProviderDescriptor) DefaultModel() string {
	ids := make([]string, 0, len(d.Models))
	for id, m := range d.Models {
		if m.IsDefault {
			return id
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return ""
	}
	sort.Strings(ids)
	return ids[0]
}

// ProviderStatus 提供方状态（描述 + 可用性）
type ProviderStatus struct {
	ProviderDescriptor
	Available bool      `json:"available"`
	Default   bool      `json:"default"`
	CheckedAt time.Time `json:"checked_at"`
}

// CostParams 费用预估参数
// PromptTokens/CompletionTokens 任一非零时优先使用，否则按 EstimatedTokens 7:3 拆分
type CostParams struct {
	Provider         string `json:"provider,omitempty"`
	Model            string `json:"model,omitempty"`
	EstimatedTokens  int    `json:"estimated_tokens,omitempty"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
}
