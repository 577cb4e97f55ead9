// Package client 网关 HTTP 客户端：并发上限、GET 缓存、限流感知重试与事件订阅
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"ai-gateway-api/internal/domain/service"
	"ai-gateway-api/pkg/logger"
)

// Config 客户端配置，零值字段取默认值
type Config struct {
	BaseURL string
	// MaxConcurrent 在途请求上限，超出的调用按到达顺序排队
	MaxConcurrent int64
	CacheTTL      time.Duration
	CacheSize     int
	// MaxAttempts 5xx / 网络错误 / 等待限流重置的总尝试次数
	MaxAttempts    int
	RetryBaseDelay time.Duration
	// DefaultRateLimitWait 429 未携带任何重置提示时的等待时长
	DefaultRateLimitWait time.Duration
	HTTPClient           *http.Client
	Logger               *slog.Logger
}

// DefaultConfig 默认客户端配置
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:        5,
		CacheTTL:             5 * time.Minute,
		CacheSize:            100,
		MaxAttempts:          3,
		RetryBaseDelay:       time.Second,
		DefaultRateLimitWait: time.Minute,
	}
}

// Sleeper 等待函数，需响应 ctx 取消
type Sleeper func(ctx context.Context, d time.Duration) error

// Option 客户端选项
type Option func(*Client)

// WithClock 替换时钟（缓存过期与限流提示计算）
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithSleeper 替换等待函数（测试）
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// Client 网关客户端，可并发使用
type Client struct {
	cfg    Config
	http   *http.Client
	log    *slog.Logger
	now    func() time.Time
	sleep  Sleeper
	sem    *semaphore.Weighted
	cache  *responseCache
	flight singleflight.Group
	events *hub

	seq      atomic.Uint64
	inFlight atomic.Int64

	tokenMu sync.RWMutex
	token   string
}

// New 创建客户端
func New(cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = def.RetryBaseDelay
	}
	if cfg.DefaultRateLimitWait <= 0 {
		cfg.DefaultRateLimitWait = def.DefaultRateLimitWait
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:    cfg,
		http:   cfg.HTTPClient,
		log:    cfg.Logger,
		now:    time.Now,
		sleep:  sleepContext,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrent),
		events: newHub(),
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.log == nil {
		c.log = logger.Default()
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cache = newResponseCache(cfg.CacheTTL, cfg.CacheSize, c.now)
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SetAuthToken 运行时替换 Bearer 令牌，空串表示不带认证头
func (c *Client) SetAuthToken(token string) {
	c.tokenMu.Lock()
	c.token = token
	c.tokenMu.Unlock()
}

func (c *Client) authToken() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

// Subscribe 订阅事件；types 为空表示全部类型。返回的函数取消订阅并关闭通道
func (c *Client) Subscribe(buffer int, types ...EventType) (<-chan Event, func()) {
	return c.events.subscribe(buffer, types...)
}

// InFlight 当前在途请求数
func (c *Client) InFlight() int {
	return int(c.inFlight.Load())
}

// ClearCache 清空响应缓存
func (c *Client) ClearCache() {
	c.cache.clear()
}

// RequestOption 单次请求选项
type RequestOption func(*requestOptions)

type requestOptions struct {
	noCache         bool
	noRetry         bool
	waitOnRateLimit bool
	headers         map[string]string
	timeout         time.Duration
}

// NoCache 跳过 GET 缓存
func NoCache() RequestOption {
	return func(o *requestOptions) { o.noCache = true }
}

// NoRetry 只尝试一次
func NoRetry() RequestOption {
	return func(o *requestOptions) { o.noRetry = true }
}

// WaitOnRateLimit 收到 429 时按重置提示等待后重试，而不是返回 RateLimitedError
func WaitOnRateLimit() RequestOption {
	return func(o *requestOptions) { o.waitOnRateLimit = true }
}

// Headers 附加请求头
func Headers(h map[string]string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string, len(h))
		}
		for k, v := range h {
			o.headers[k] = v
		}
	}
}

// Timeout 整个逻辑请求（含排队与重试等待）的超时
func Timeout(d time.Duration) RequestOption {
	return func(o *requestOptions) { o.timeout = d }
}

// Response 网关响应
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Cached 来自本地缓存
	Cached bool
}

// Decode 将响应体解码到 v
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type prepared struct {
	id     uint64
	method string
	url    string
	params url.Values
	body   []byte
	opts   requestOptions
}

// Request 发送请求；GET 的 data 作为查询参数，其余方法的 data 编码为 JSON 请求体
func (c *Client) Request(ctx context.Context, method, endpoint string, data any, opts ...RequestOption) (*Response, error) {
	p, err := c.prepare(method, endpoint, data, opts)
	if err != nil {
		return nil, err
	}
	if p.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.timeout)
		defer cancel()
	}

	if p.method != http.MethodGet || p.opts.noCache {
		return c.execute(ctx, p)
	}

	key := cacheKey(p.method, p.url, p.params)
	if resp, ok := c.cache.get(key); ok {
		return cloneResponse(resp, true), nil
	}
	// 相同的 GET 在途时合并为一次网络调用；共享请求不随单个调用方的超时或取消而中止
	ch := c.flight.DoChan(key, func() (any, error) {
		if resp, ok := c.cache.get(key); ok {
			return cloneResponse(resp, true), nil
		}
		resp, err := c.execute(context.WithoutCancel(ctx), p)
		if err != nil {
			return nil, err
		}
		c.cache.set(key, cloneResponse(resp, false))
		return resp, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		resp := res.Val.(*Response)
		return cloneResponse(resp, resp.Cached), nil
	}
}

// cloneResponse 深拷贝响应体与响应头，调用方修改不会影响缓存
func cloneResponse(r *Response, cached bool) *Response {
	cp := *r
	cp.Body = bytes.Clone(r.Body)
	cp.Header = r.Header.Clone()
	cp.Cached = cached
	return &cp
}

func (c *Client) prepare(method, endpoint string, data any, opts []RequestOption) (*prepared, error) {
	p := &prepared{
		id:     c.seq.Add(1),
		method: strings.ToUpper(method),
	}
	for _, opt := range opts {
		opt(&p.opts)
	}

	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		p.url = endpoint
	} else {
		p.url = c.cfg.BaseURL + "/" + strings.TrimLeft(endpoint, "/")
	}

	if p.method == http.MethodGet {
		params, err := queryParams(data)
		if err != nil {
			return nil, err
		}
		p.params = params
		return p, nil
	}
	if data != nil {
		body, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		p.body = body
	}
	return p, nil
}

func queryParams(data any) (url.Values, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case url.Values:
		return v, nil
	case map[string]string:
		out := make(url.Values, len(v))
		for k, s := range v {
			out.Set(k, s)
		}
		return out, nil
	case map[string]any:
		out := make(url.Values, len(v))
		for k, x := range v {
			out.Set(k, fmt.Sprint(x))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported query params type %T", data)
	}
}

// execute 单个逻辑请求的状态机：QUEUED → IN_FLIGHT → 成功 / 限流 / 重试 / 失败
// 重试等待期间释放并发槽位，等待结束后重新排队
func (c *Client) execute(ctx context.Context, p *prepared) (*Response, error) {
	for attempt := 1; ; attempt++ {
		c.transition(p, StateQueued, attempt, nil)
		if err := c.sem.Acquire(ctx, 1); err != nil {
			c.transition(p, StateFailed, attempt, err)
			return nil, err
		}
		c.transition(p, StateInFlight, attempt, nil)
		c.loading(1)
		resp, err := c.send(ctx, p)
		c.loading(-1)
		c.sem.Release(1)

		var (
			wait    time.Duration
			lastErr error
		)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				c.transition(p, StateFailed, attempt, ctx.Err())
				return nil, ctx.Err()
			}
			lastErr = err
			wait = c.cfg.RetryBaseDelay * time.Duration(attempt)

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			c.transition(p, StateSucceeded, attempt, nil)
			return resp, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			wait = c.resetHint(resp)
			rlErr := &RateLimitedError{Method: p.method, URL: p.url, RetryAfter: wait, Body: resp.Body}
			c.transition(p, StateRateLimited, attempt, rlErr)
			c.events.publish(Event{
				Type: EventRateLimited, RequestID: p.id, Method: p.method, URL: p.url,
				State: StateRateLimited, Attempt: attempt, RetryAfter: wait, StatusCode: resp.StatusCode, Err: rlErr,
			})
			if !p.opts.waitOnRateLimit || p.opts.noRetry || attempt >= c.cfg.MaxAttempts {
				c.transition(p, StateFailed, attempt, rlErr)
				return nil, rlErr
			}
			c.log.Info("rate limited, waiting for reset", "url", p.url, "wait", wait.String(), "attempt", attempt)
			if err := c.sleep(ctx, wait); err != nil {
				c.transition(p, StateFailed, attempt, err)
				return nil, err
			}
			continue

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			statusErr := c.statusError(p, resp)
			c.events.publish(Event{
				Type: EventAuthFailure, RequestID: p.id, Method: p.method, URL: p.url,
				State: StateFailed, Attempt: attempt, StatusCode: resp.StatusCode, Err: statusErr,
			})
			c.transition(p, StateFailed, attempt, statusErr)
			return nil, statusErr

		case resp.StatusCode >= 500:
			if code, fatal := fatalEnvelopeCode(resp.Body); fatal {
				statusErr := c.statusError(p, resp)
				c.log.Warn("gateway reported a non-retryable failure", "url", p.url, "code", code)
				c.transition(p, StateFailed, attempt, statusErr)
				return nil, statusErr
			}
			lastErr = c.statusError(p, resp)
			wait = c.cfg.RetryBaseDelay * time.Duration(attempt)

		default:
			statusErr := c.statusError(p, resp)
			c.transition(p, StateFailed, attempt, statusErr)
			return nil, statusErr
		}

		// 5xx 与网络错误
		if p.opts.noRetry || attempt >= c.cfg.MaxAttempts {
			c.transition(p, StateFailed, attempt, lastErr)
			return nil, lastErr
		}
		c.transition(p, StateRetrying, attempt, lastErr)
		c.log.Warn("request failed, retrying", "url", p.url, "attempt", attempt, "delay", wait.String(), "error", lastErr.Error())
		if err := c.sleep(ctx, wait); err != nil {
			c.transition(p, StateFailed, attempt, err)
			return nil, err
		}
	}
}

func (c *Client) statusError(p *prepared, resp *Response) *StatusError {
	return &StatusError{Method: p.method, URL: p.url, StatusCode: resp.StatusCode, Body: resp.Body}
}

func (c *Client) send(ctx context.Context, p *prepared) (*Response, error) {
	target := p.url
	if len(p.params) > 0 {
		target += "?" + p.params.Encode()
	}
	var body io.Reader
	if p.body != nil {
		body = bytes.NewReader(p.body)
	}

	req, err := http.NewRequestWithContext(ctx, p.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.authToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range p.opts.headers {
		req.Header.Set(k, v)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", p.method, p.url, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: raw}, nil
}

// resetHint 依次读取 Retry-After、X-RateLimit-Reset、响应体 retry_after
func (c *Client) resetHint(resp *Response) time.Duration {
	if v := strings.TrimSpace(resp.Header.Get("Retry-After")); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
			return secondsToDuration(secs)
		}
		if at, err := http.ParseTime(v); err == nil {
			return nonNegative(at.Sub(c.now()))
		}
	}
	if v := strings.TrimSpace(resp.Header.Get("X-RateLimit-Reset")); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			return nonNegative(time.Unix(unix, 0).Sub(c.now()))
		}
	}
	var body struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if json.Unmarshal(resp.Body, &body) == nil && body.RetryAfter > 0 {
		return secondsToDuration(body.RetryAfter)
	}
	return c.cfg.DefaultRateLimitWait
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(math.Ceil(secs * float64(time.Second)))
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

func (c *Client) transition(p *prepared, s State, attempt int, err error) {
	c.events.publish(Event{
		Type: EventStateChange, RequestID: p.id, Method: p.method, URL: p.url,
		State: s, Attempt: attempt, InFlight: c.InFlight(), Err: err,
	})
}

func (c *Client) loading(delta int64) {
	n := c.inFlight.Add(delta)
	c.events.publish(Event{Type: EventLoading, InFlight: int(n), Loading: n > 0})
}

// fatalEnvelopeCode 网关错误信封中的配置错误与上游拒绝不会因重试而成功
func fatalEnvelopeCode(body []byte) (string, bool) {
	var env struct {
		Code string `json:"code"`
	}
	if json.Unmarshal(body, &env) != nil {
		return "", false
	}
	switch env.Code {
	case service.CodeConfiguration, service.CodeProviderRejected:
		return env.Code, true
	}
	return "", false
}

// IsRateLimited 错误是否为 RateLimitedError
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}
