//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package cache is the in-memory resource record store. Records are
// keyed by class, type, case-folded owner name and rdata, age out at
// their time-to-live, and are purged by per-entry timers.
package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/polymorfiq/dns-server/internal/dnswire"
)

// DefaultMaxBuckets bounds how many distinct (class, type, name) keys
// the cache holds before the least recently stored one is evicted.
const DefaultMaxBuckets = 4096

type bucketKey struct {
	class dnswire.Class
	rtype dnswire.Type
	name  string // canonical (lowercased) dotted form
}

type entry struct {
	eol      time.Time
	resource dnswire.Resource
}

// Cache stores resource records until their time-to-live runs out.
//
// Lookups may run concurrently; stores serialize. The LRU recency list
// is only touched under the write lock, so readers use Peek.
type Cache struct {
	mu      sync.RWMutex
	buckets *simplelru.LRU[bucketKey, map[string]*entry]
}

// New returns a cache bounded to maxBuckets name buckets. A maxBuckets
// of zero or less selects [DefaultMaxBuckets].
func New(maxBuckets int) *Cache {
	if maxBuckets <= 0 {
		maxBuckets = DefaultMaxBuckets
	}
	// NewLRU only fails on a non-positive size.
	buckets, err := simplelru.NewLRU[bucketKey, map[string]*entry](maxBuckets, nil)
	if err != nil {
		panic(err)
	}
	return &Cache{buckets: buckets}
}

// Lookup returns every stored record matching the question's class, type
// and case-folded name. Each returned record's TTL is rewritten to the
// seconds remaining until its end of life at instant now; records whose
// remaining TTL is negative are filtered out.
//
// Wildcard question fields are matched exactly, never expanded: a
// question for type "*" only hits records stored under type "*", which
// the resolver never stores.
func (c *Cache) Lookup(now time.Time, q dnswire.Question) []dnswire.Resource {
	key := bucketKey{class: q.Class, rtype: q.Type, name: q.Name.Canonical()}

	c.mu.RLock()
	defer c.mu.RUnlock()

	bucket, ok := c.buckets.Peek(key)
	if !ok {
		return nil
	}
	var out []dnswire.Resource
	for _, e := range bucket {
		if e.eol.Before(now) {
			continue
		}
		r := e.resource
		r.TTL = int32(e.eol.Sub(now) / time.Second)
		out = append(out, r)
	}
	return out
}

// Store inserts the record, replacing any record with the same class,
// type, name and rdata, and schedules its removal once the TTL elapses.
// The removal only happens if the key still maps to the stored record,
// so a replacement implicitly disarms the stale timer.
func (c *Cache) Store(now time.Time, r dnswire.Resource) error {
	rdata, err := r.EncodeData()
	if err != nil {
		return err
	}
	key := bucketKey{class: r.Class, rtype: r.Type, name: r.Name.Canonical()}
	rdataKey := string(rdata)

	e := &entry{
		eol:      now.Add(time.Duration(r.TTL) * time.Second),
		resource: r,
	}

	c.mu.Lock()
	bucket, ok := c.buckets.Get(key)
	if !ok {
		bucket = make(map[string]*entry)
		c.buckets.Add(key, bucket)
	}
	bucket[rdataKey] = e
	c.mu.Unlock()

	time.AfterFunc(time.Duration(r.TTL)*time.Second, func() {
		c.expire(key, rdataKey, e)
	})
	return nil
}

// expire removes the entry if and only if the key still maps to the
// record that scheduled this purge.
func (c *Cache) expire(key bucketKey, rdataKey string, e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.buckets.Peek(key)
	if !ok {
		return
	}
	if bucket[rdataKey] != e {
		return
	}
	delete(bucket, rdataKey)
	if len(bucket) == 0 {
		c.buckets.Remove(key)
	}
}

// Len returns the number of name buckets currently held.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.buckets.Len()
}
