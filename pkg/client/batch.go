package client

import (
	"context"
	"sync"
)

// BatchRequest 批量中的单个请求
type BatchRequest struct {
	Method   string
	Endpoint string
	Data     any
	Options  []RequestOption
}

// BatchResult 单个请求的结算结果，Err 与 Response 二选一
type BatchResult struct {
	Response *Response
	Err      error
}

// Batch 在同一并发上限下发出全部请求，按输入顺序返回每个请求的结果；单个失败不影响其余请求
func (c *Client) Batch(ctx context.Context, reqs []BatchRequest) []BatchResult {
	results := make([]BatchResult, len(reqs))
	var wg sync.WaitGroup
	for i, r := range reqs {
		wg.Add(1)
		go func(i int, r BatchRequest) {
			defer wg.Done()
			resp, err := c.Request(ctx, r.Method, r.Endpoint, r.Data, r.Options...)
			results[i] = BatchResult{Response: resp, Err: err}
		}(i, r)
	}
	wg.Wait()
	return results
}
