package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"k8s.io/klog/v2"
)

// StreamText 在单独的 goroutine 中读取模型流，按顺序把文本片段写入 tokens
// tokens 关闭后从 errs 读取最终错误（正常结束为 nil）；ctx 取消时生产者停止
func StreamText(ctx context.Context, cm einomodel.BaseChatModel, msgs []*schema.Message) (<-chan string, <-chan error) {
	tokens := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(tokens)
		defer close(errs)

		sr, err := cm.Stream(ctx, msgs)
		if err != nil {
			errs <- fmt.Errorf("stream request failed: %w", err)
			return
		}
		defer sr.Close()

		for {
			chunk, err := sr.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errs <- fmt.Errorf("stream receive failed: %w", err)
				return
			}
			if chunk == nil || chunk.Content == "" {
				continue
			}
			select {
			case tokens <- chunk.Content:
			case <-ctx.Done():
				klog.V(6).Infof("[LLM] 流式输出被取消: %v", ctx.Err())
				errs <- ctx.Err()
				return
			}
		}
	}()

	return tokens, errs
}

// Generate 非流式生成，返回文本内容
func Generate(ctx context.Context, cm einomodel.BaseChatModel, msgs []*schema.Message) (string, error) {
	resp, err := cm.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("generate failed: empty response")
	}
	return resp.Content, nil
}
