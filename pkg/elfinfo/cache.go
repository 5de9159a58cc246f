package elfinfo

import (
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/arthur-debert/depbundle/pkg/errors"
)

// Introspector produces descriptors for files on disk.
type Introspector interface {
	Introspect(path string) (*Descriptor, error)
}

// IntrospectorFunc adapts a function to the Introspector interface.
type IntrospectorFunc func(path string) (*Descriptor, error)

func (f IntrospectorFunc) Introspect(path string) (*Descriptor, error) {
	return f(path)
}

// Default introspects straight from disk.
var Default Introspector = IntrospectorFunc(Introspect)

// DefaultCacheSize is used when a non-positive size is requested.
const DefaultCacheSize = 4096

type cacheEntry struct {
	size  int64
	mtime time.Time
	desc  *Descriptor
	err   error
}

// CachedIntrospector memoizes descriptors by path. An entry is reused only
// while the file keeps the size and modification time it had when parsed.
// Negative results such as ErrNotELF are cached the same way, since the
// locator probes the same system directories over and over.
type CachedIntrospector struct {
	next   Introspector
	cache  *lru.Cache[string, cacheEntry]
	hits   int
	misses int
}

// NewCachedIntrospector wraps next with an LRU cache holding up to size
// entries.
func NewCachedIntrospector(next Introspector, size int) (*CachedIntrospector, error) {
	if next == nil {
		next = Default
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "cannot create descriptor cache")
	}
	return &CachedIntrospector{next: next, cache: cache}, nil
}

// Introspect implements Introspector.
func (c *CachedIntrospector) Introspect(path string) (*Descriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		c.cache.Remove(path)
		return c.next.Introspect(path)
	}

	if e, ok := c.cache.Get(path); ok && e.size == info.Size() && e.mtime.Equal(info.ModTime()) {
		c.hits++
		return e.desc, e.err
	}

	c.misses++
	desc, err := c.next.Introspect(path)
	c.cache.Add(path, cacheEntry{
		size:  info.Size(),
		mtime: info.ModTime(),
		desc:  desc,
		err:   err,
	})
	return desc, err
}

// Stats returns the number of cache hits and misses so far.
func (c *CachedIntrospector) Stats() (hits, misses int) {
	return c.hits, c.misses
}

// Len returns the number of cached entries.
func (c *CachedIntrospector) Len() int {
	return c.cache.Len()
}
