package server

import "github.com/aeolun/auboutique/pkg/protocol"

// replyCache remembers the last answered requests on one connection, keyed
// by request id, so a client retry is answered without running the request a
// second time. Oldest entries are evicted first. Only the connection's own
// handler goroutine touches it.
type replyCache struct {
	size    int
	entries map[string]*protocol.Response
	order   []string
}

func newReplyCache(size int) *replyCache {
	if size < 1 {
		size = 1
	}
	return &replyCache{
		size:    size,
		entries: make(map[string]*protocol.Response, size),
		order:   make([]string, 0, size),
	}
}

func (c *replyCache) Get(requestID string) (*protocol.Response, bool) {
	resp, ok := c.entries[requestID]
	return resp, ok
}

func (c *replyCache) Put(requestID string, resp *protocol.Response) {
	if _, ok := c.entries[requestID]; ok {
		c.entries[requestID] = resp
		return
	}
	if len(c.order) == c.size {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
	c.entries[requestID] = resp
	c.order = append(c.order, requestID)
}

func (c *replyCache) Len() int {
	return len(c.order)
}
