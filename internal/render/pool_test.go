package render

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeBackend struct {
	mu      sync.Mutex
	active  int32
	maxSeen int32
	result  []byte
	err     error
	delay   time.Duration
}

func (b *fakeBackend) Render(ctx context.Context, req *Request) ([]byte, error) {
	current := atomic.AddInt32(&b.active, 1)
	defer atomic.AddInt32(&b.active, -1)

	b.mu.Lock()
	if current > b.maxSeen {
		b.maxSeen = current
	}
	b.mu.Unlock()

	if b.delay > 0 {
		time.Sleep(b.delay)
	}

	return b.result, b.err
}

func TestPoolBoundedConcurrency(t *testing.T) {
	backend := &fakeBackend{result: []byte("图"), delay: 20 * time.Millisecond}
	pool := NewPool(backend, 3, 1024)

	wg := sync.WaitGroup{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pool.Render(context.Background(), &Request{ReportID: 1}); err != nil {
				t.Errorf("渲染失败: %v", err)
			}
		}()
	}
	wg.Wait()

	if backend.maxSeen > 3 {
		t.Errorf("同时渲染数量达到 %d, 超过上限 3", backend.maxSeen)
	}
}

func TestPoolSizeCeiling(t *testing.T) {
	backend := &fakeBackend{result: make([]byte, 11)}
	pool := NewPool(backend, 1, 10)

	if _, err := pool.Render(context.Background(), &Request{ReportID: 1}); err == nil {
		t.Error("超过大小上限的渲染产物应该按失败处理")
	}

	// 正好在上限内则通过
	backend.result = make([]byte, 10)
	if _, err := pool.Render(context.Background(), &Request{ReportID: 1}); err != nil {
		t.Errorf("大小在上限内的渲染不应失败: %v", err)
	}
}

func TestPoolBackendError(t *testing.T) {
	backend := &fakeBackend{err: errors.New("浏览器进程崩溃")}
	pool := NewPool(backend, 1, 1024)

	if _, err := pool.Render(context.Background(), &Request{ReportID: 1}); err == nil {
		t.Error("后端错误应该向上传递")
	}
}

func TestPoolContextCancelledWhileWaiting(t *testing.T) {
	backend := &fakeBackend{result: []byte("图"), delay: 100 * time.Millisecond}
	pool := NewPool(backend, 1, 1024)

	// 占住唯一的名额
	go pool.Render(context.Background(), &Request{ReportID: 1})
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := pool.Render(ctx, &Request{ReportID: 2}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("排队等待时取消应该返回上下文错误, got %v", err)
	}
}
