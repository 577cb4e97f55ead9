package client

import (
	"container/list"
	"net/url"
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	key       string
	resp      *Response
	expiresAt time.Time
}

// responseCache GET 响应缓存：TTL 过期，超出容量时淘汰最早写入的条目
type responseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	now     func() time.Time
	order   *list.List
	entries map[string]*list.Element
}

func newResponseCache(ttl time.Duration, max int, now func() time.Time) *responseCache {
	return &responseCache{
		ttl:     ttl,
		max:     max,
		now:     now,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// cacheKey {method, url, 排序后的参数}
func cacheKey(method, rawURL string, params url.Values) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte(' ')
	b.WriteString(rawURL)
	if len(params) > 0 {
		// Encode 按键排序
		b.WriteByte('?')
		b.WriteString(params.Encode())
	}
	return b.String()
}

func (c *responseCache) get(key string) (*Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if !c.now().Before(entry.expiresAt) {
		c.removeElement(el)
		return nil, false
	}
	return entry.resp, true
}

func (c *responseCache) set(key string, resp *Response) {
	if c.ttl <= 0 || c.max <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeElement(el)
	}
	for c.order.Len() >= c.max {
		c.removeElement(c.order.Front())
	}
	el := c.order.PushBack(&cacheEntry{key: key, resp: resp, expiresAt: c.now().Add(c.ttl)})
	c.entries[key] = el
}

func (c *responseCache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*cacheEntry).key)
}

func (c *responseCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *responseCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[string]*list.Element)
}
