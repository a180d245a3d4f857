package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPBackend 通过 HTTP 调用无头渲染集群
type HTTPBackend struct {
	url      string
	client   *http.Client
	maxBytes int64
}

func NewHTTPBackend(url string, timeout time.Duration, maxBytes int64) *HTTPBackend {
	return &HTTPBackend{
		url:      url,
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

func (b *HTTPBackend) Render(ctx context.Context, req *Request) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		message, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("渲染后端返回 %d: %s", resp.StatusCode, message)
	}

	// 最多读到上限多一个字节，超限的判断交给渲染池
	image, err := io.ReadAll(io.LimitReader(resp.Body, b.maxBytes+1))
	if err != nil {
		return nil, err
	}

	return image, nil
}
