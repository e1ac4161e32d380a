package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"

	"github.com/wwwzy/wxorca/internal/config"
)

// NewChatModel 初始化 Ark ChatModel
func NewChatModel(ctx context.Context, arkConfig config.ArkConfig) (*ark.ChatModel, error) {
	if !arkConfig.Enabled() {
		return nil, fmt.Errorf("ARK_API_KEY, ARK_MODEL_ID must be set")
	}

	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		APIKey:  arkConfig.APIKey,
		Model:   arkConfig.ModelID,
		BaseURL: arkConfig.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create ark chat model: %w", err)
	}
	return chatModel, nil
}

// NewArkResponder 返回基于 Ark 模型的回复生成器
func NewArkResponder(ctx context.Context, arkConfig config.ArkConfig) (*ChatModelResponder, error) {
	m, err := NewChatModel(ctx, arkConfig)
	if err != nil {
		return nil, err
	}
	return NewChatModelResponder(m), nil
}
