package tools

import (
	"fmt"

	"github.com/cloudwego/eino/components/tool"
)

// GetTools 返回内置工具集合。docs 为 nil 时文档检索使用内置语料。
func GetTools(docs DocSource) []tool.InvokableTool {
	return []tool.InvokableTool{
		NewSearchDocsTool(docs),
		&ValidateConfigTool{},
		&FetchExamplesTool{},
	}
}

// NewBuiltinRegistry 创建已登记全部内置工具的 Registry
func NewBuiltinRegistry(cfg Config, docs DocSource, opts ...Option) (*Registry, error) {
	r := NewRegistry(cfg, opts...)
	for _, t := range GetTools(docs) {
		if err := r.Register(t); err != nil {
			return nil, fmt.Errorf("register builtin tool: %w", err)
		}
	}
	return r, nil
}
