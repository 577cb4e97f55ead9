// Package prompt 管理各分析类型的提示词模板
package prompt

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"ai-gateway-api/internal/domain/entity"
	"ai-gateway-api/pkg/logger"
)

//go:embed templates/*.txt
var templatesFS embed.FS

// placeholderPattern 匹配 {name}，同时匹配 {{ 与 }} 以便跳过转义
var placeholderPattern = regexp.MustCompile(`\{\{|\}\}|\{(\w+)\}`)

// Template 一对 system/user 模板，占位符写作 {name}，字面量花括号写作 {{ }}
type Template struct {
	System string
	User   string
}

// Rendered 渲染后的提示词
type Rendered struct {
	System string
	User   string
}

// Registry 提示词模板注册表
type Registry struct {
	mu        sync.RWMutex
	templates map[entity.AnalysisType]Template
	cache     map[entity.AnalysisType]einoprompt.ChatTemplate
}

// NewRegistry 加载内置模板；dir 非空时同名文件覆盖内置模板
func NewRegistry(dir string) (*Registry, error) {
	r := &Registry{
		templates: make(map[entity.AnalysisType]Template),
		cache:     make(map[entity.AnalysisType]einoprompt.ChatTemplate),
	}

	for _, t := range entity.AnalysisTypes() {
		tpl, err := loadTemplate(templatesFS, "templates", t)
		if err != nil {
			return nil, fmt.Errorf("load embedded prompt %s: %w", t, err)
		}
		r.templates[t] = tpl
	}

	if dir == "" {
		return r, nil
	}
	override := os.DirFS(dir)
	for _, t := range entity.AnalysisTypes() {
		tpl, err := loadTemplate(override, ".", t)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load prompt override %s from %s: %w", t, dir, err)
		}
		r.templates[t] = tpl
	}
	return r, nil
}

func loadTemplate(fsys fs.FS, root string, t entity.AnalysisType) (Template, error) {
	system, err := readText(fsys, filepath.ToSlash(filepath.Join(root, string(t)+".system.txt")))
	if err != nil {
		return Template{}, err
	}
	user, err := readText(fsys, filepath.ToSlash(filepath.Join(root, string(t)+".user.txt")))
	if err != nil {
		return Template{}, err
	}
	return Template{System: system, User: user}, nil
}

func readText(fsys fs.FS, path string) (string, error) {
	b, err := fs.ReadFile(fsys, path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// Register 运行时替换某个分析类型的模板
func (r *Registry) Register(t entity.AnalysisType, tpl Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t] = tpl
	delete(r.cache, t)
}

// Template 返回模板原文
func (r *Registry) Template(t entity.AnalysisType) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tpl, ok := r.templates[t]
	return tpl, ok
}

func (r *Registry) chatTemplate(t entity.AnalysisType) (einoprompt.ChatTemplate, Template, error) {
	r.mu.RLock()
	tpl, ok := r.templates[t]
	compiled, cached := r.cache[t]
	r.mu.RUnlock()
	if !ok {
		return nil, Template{}, fmt.Errorf("unknown prompt type: %s", t)
	}
	if cached {
		return compiled, tpl, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if compiled, ok := r.cache[t]; ok {
		return compiled, tpl, nil
	}
	compiled = einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(tpl.System),
		schema.UserMessage(tpl.User),
	)
	r.cache[t] = compiled
	return compiled, tpl, nil
}

// Render 渲染模板；缺失值的占位符原样保留，只有未知类型会返回错误
func (r *Registry) Render(ctx context.Context, t entity.AnalysisType, vars map[string]any) (Rendered, error) {
	compiled, tpl, err := r.chatTemplate(t)
	if err != nil {
		return Rendered{}, err
	}

	values := make(map[string]any, len(vars))
	for k, v := range vars {
		values[k] = Stringify(v)
	}
	for _, name := range Placeholders(tpl.System + "\n" + tpl.User) {
		if _, ok := values[name]; !ok {
			values[name] = "{" + name + "}"
		}
	}

	msgs, err := compiled.Format(ctx, values)
	if err != nil || len(msgs) != 2 {
		logger.Warn(ctx, "prompt template format failed, using plain substitution",
			"analysis_type", string(t), "error", fmt.Sprint(err))
		return Rendered{
			System: substitute(tpl.System, values),
			User:   substitute(tpl.User, values),
		}, nil
	}
	return Rendered{System: msgs[0].Content, User: msgs[1].Content}, nil
}

// Placeholders 返回模板中出现的占位符名（去重、排序）
func Placeholders(text string) []string {
	seen := make(map[string]struct{})
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		if m[1] != "" {
			seen[m[1]] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// substitute 不依赖模板引擎的兜底替换
func substitute(text string, values map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(m string) string {
		switch m {
		case "{{":
			return "{"
		case "}}":
			return "}"
		}
		name := m[1 : len(m)-1]
		if v, ok := values[name]; ok {
			return fmt.Sprint(v)
		}
		return m
	})
}

// BuildVars 由请求内容构造模板变量：顶层字段逐个展开，另附 content 与 instructions
func BuildVars(content map[string]any, instructions string) map[string]any {
	vars := make(map[string]any, len(content)+2)
	for k, v := range content {
		vars[k] = v
	}
	vars["content"] = Stringify(content)
	if strings.TrimSpace(instructions) == "" {
		instructions = "none"
	}
	vars["instructions"] = instructions
	return vars
}

// Stringify 标量按 fmt 输出，map/slice 输出 JSON
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	case bool, int, int32, int64, float32, float64, uint, uint32, uint64:
		return fmt.Sprint(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
