package render

import (
	"context"
	"encoding/json"
	"fmt"
)

// Request 是渲染契约的请求侧：报表数据加图表配置，产出一张位图
type Request struct {
	ReportID    int64           `json:"reportID"`
	Data        json.RawMessage `json:"data"`
	ChartConfig json.RawMessage `json:"chartConfig"`
}

// Backend 是渲染后端的黑盒边界，内部如何驱动无头浏览器与本引擎无关
type Backend interface {
	Render(ctx context.Context, req *Request) ([]byte, error)
}

// Pool 限制同时进行的渲染数量。渲染池饱和时调用方阻塞等待，
// 但这只影响正在渲染的 worker，不影响扫描器和其他 worker
type Pool struct {
	backend  Backend
	sem      chan struct{}
	maxBytes int64
}

func NewPool(backend Backend, concurrency int, maxBytes int64) *Pool {
	return &Pool{
		backend:  backend,
		sem:      make(chan struct{}, concurrency),
		maxBytes: maxBytes,
	}
}

// Render 在并发额度内执行一次渲染，超出大小上限的产物按渲染失败处理
func (p *Pool) Render(ctx context.Context, req *Request) ([]byte, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.sem }()

	image, err := p.backend.Render(ctx, req)
	if err != nil {
		return nil, err
	}

	if int64(len(image)) > p.maxBytes {
		return nil, fmt.Errorf("渲染产物 %d 字节超过上限 %d 字节", len(image), p.maxBytes)
	}

	return image, nil
}
