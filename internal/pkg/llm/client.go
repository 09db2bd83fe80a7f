// Package llm 基于 eino 创建 chat model，并提供流式输出转发。
package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"k8s.io/klog/v2"

	"github.com/specbuilder/backend/config"
	"github.com/specbuilder/backend/internal/model"
)

// Provider 模型提供方
type Provider string

const (
	ProviderClaude Provider = "claude"
	ProviderOpenAI Provider = "openai"
)

var (
	ErrMissingAPIKey       = errors.New("llm: api key is required")
	ErrUnsupportedProvider = errors.New("llm: unsupported provider")
)

// Options 创建单个 chat model 所需参数
type Options struct {
	Provider  Provider
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

func (o Options) cacheKey() string {
	return fmt.Sprintf("%s|%s|%s|%s", o.Provider, o.BaseURL, o.Model, o.APIKey)
}

// ChatModelProvider 按会话设置返回可用的 chat model
type ChatModelProvider interface {
	ForSettings(ctx context.Context, settings model.Settings) (einomodel.BaseChatModel, error)
}

// Factory 默认实现，按 provider + key 缓存已创建的模型
type Factory struct {
	cfg *config.Config

	cacheMutex sync.RWMutex
	cache      map[string]einomodel.BaseChatModel
}

// NewFactory 创建模型工厂
func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		cfg:   cfg,
		cache: make(map[string]einomodel.BaseChatModel),
	}
}

// Resolve 合并服务端配置与会话设置
// 会话未提供 key 或选择使用服务端 key 时，使用配置中的 key
func (f *Factory) Resolve(settings model.Settings) Options {
	opts := Options{
		Provider:  Provider(f.cfg.LLM.Provider),
		APIKey:    f.cfg.LLM.APIKey,
		BaseURL:   f.cfg.LLM.APIURL,
		Model:     f.cfg.LLM.Model,
		MaxTokens: f.cfg.LLM.MaxTokens,
	}
	if settings.Provider != "" && Provider(settings.Provider) != opts.Provider {
		// 切换提供方时不沿用服务端的模型名与地址
		opts.Provider = Provider(settings.Provider)
		opts.Model = defaultModel(opts.Provider)
		opts.BaseURL = ""
		opts.APIKey = ""
	}
	if !settings.UseServiceKey && settings.APIKey != "" {
		opts.APIKey = settings.APIKey
	}
	if opts.Provider == "" {
		opts.Provider = ProviderClaude
	}
	if opts.Model == "" {
		opts.Model = defaultModel(opts.Provider)
	}
	return opts
}

func defaultModel(p Provider) string {
	switch p {
	case ProviderOpenAI:
		return "gpt-4o"
	default:
		return "claude-sonnet-4-20250514"
	}
}

// ForSettings 实现 ChatModelProvider
func (f *Factory) ForSettings(ctx context.Context, settings model.Settings) (einomodel.BaseChatModel, error) {
	opts := f.Resolve(settings)
	key := opts.cacheKey()

	f.cacheMutex.RLock()
	if cached, ok := f.cache[key]; ok {
		f.cacheMutex.RUnlock()
		return cached, nil
	}
	f.cacheMutex.RUnlock()

	cm, err := NewChatModel(ctx, opts)
	if err != nil {
		return nil, err
	}

	f.cacheMutex.Lock()
	f.cache[key] = cm
	f.cacheMutex.Unlock()

	klog.V(6).Infof("[LLM] 创建并缓存模型: provider=%s, model=%s", opts.Provider, opts.Model)
	return cm, nil
}

// NewChatModel 按提供方创建 eino chat model
func NewChatModel(ctx context.Context, opts Options) (einomodel.BaseChatModel, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	switch opts.Provider {
	case ProviderOpenAI:
		maxTokens := opts.MaxTokens
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:   opts.BaseURL,
			APIKey:    opts.APIKey,
			Model:     opts.Model,
			MaxTokens: &maxTokens,
		})
		if err != nil {
			klog.Errorf("[LLM] 创建 OpenAI ChatModel 失败: %v", err)
			return nil, err
		}
		return cm, nil

	case ProviderClaude:
		cm, err := claude.NewChatModel(ctx, &claude.Config{
			APIKey:    opts.APIKey,
			Model:     opts.Model,
			MaxTokens: opts.MaxTokens,
		})
		if err != nil {
			klog.Errorf("[LLM] 创建 Claude ChatModel 失败: %v", err)
			return nil, err
		}
		return cm, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, opts.Provider)
	}
}
