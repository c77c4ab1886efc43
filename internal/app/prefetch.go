package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"scorm-quiz-service/internal/domain"
	"scorm-quiz-service/internal/metrics"
)

// Resource is a media file held locally for an attempt.
type Resource struct {
	URL         string
	Key         string
	ContentType string
	Data        []byte
}

// Fetcher downloads one media reference.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Resource, error)
}

// ResourceKey is the stable local handle for a media URL.
func ResourceKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:12])
}

// Resources is the prefetched media of one quiz version. Ready flips once
// every fetch has settled, whether it succeeded or not.
type Resources struct {
	version int64
	done    chan struct{}

	mu     sync.RWMutex
	items  map[string]Resource // by key
	failed map[string]error    // by url
}

func newResources(version int64) *Resources {
	return &Resources{
		version: version,
		done:    make(chan struct{}),
		items:   make(map[string]Resource),
		failed:  make(map[string]error),
	}
}

// Ready reports whether every fetch has settled.
func (r *Resources) Ready() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Wait blocks until Ready or ctx is done.
func (r *Resources) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get returns the resource fetched for url.
func (r *Resources) Get(url string) (Resource, bool) {
	return r.ByKey(ResourceKey(url))
}

// ByKey returns the resource stored under a local handle.
func (r *Resources) ByKey(key string) (Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.items[key]
	return res, ok
}

// Keys maps every fetched url to its local handle.
func (r *Resources) Keys() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.items))
	for key, res := range r.items {
		out[res.URL] = key
	}
	return out
}

// Failed returns the urls whose fetch failed.
func (r *Resources) Failed() map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]error, len(r.failed))
	for k, v := range r.failed {
		out[k] = v
	}
	return out
}

func (r *Resources) put(res Resource) {
	r.mu.Lock()
	r.items[res.Key] = res
	r.mu.Unlock()
}

func (r *Resources) fail(url string, err error) {
	r.mu.Lock()
	r.failed[url] = err
	r.mu.Unlock()
}

// Prefetcher resolves quiz media ahead of an attempt and shares the result
// between attempts of the same quiz version. Entries expire once unused for
// the cache TTL; URLs that failed are fetched again on the next Prefetch.
type Prefetcher struct {
	fetcher     Fetcher
	concurrency int
	timeout     time.Duration
	ttl         time.Duration
	clock       func() time.Time
	log         *zap.Logger

	mu    sync.Mutex
	cache map[string]cachedResources // by quiz id
}

type cachedResources struct {
	res      *Resources
	lastUsed time.Time
}

func NewPrefetcher(fetcher Fetcher, concurrency int, timeout time.Duration, log *zap.Logger) *Prefetcher {
	if concurrency <= 0 {
		concurrency = 4
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Prefetcher{
		fetcher:     fetcher,
		concurrency: concurrency,
		timeout:     timeout,
		ttl:         10 * time.Minute,
		clock:       time.Now,
		log:         log,
		cache:       make(map[string]cachedResources),
	}
}

// WithCache sets how long unused media stay cached and the clock measuring it.
func (p *Prefetcher) WithCache(ttl time.Duration, clock func() time.Time) *Prefetcher {
	p.ttl = ttl
	p.clock = clock
	return p
}

// Prefetch starts resolving the quiz media and returns immediately. Calls for
// a quiz version already being fetched share the same Resources. A quiz
// without media is ready on return.
func (p *Prefetcher) Prefetch(ctx context.Context, quiz domain.Quiz) *Resources {
	now := p.clock()
	p.mu.Lock()
	p.evictLocked(now)
	var prev *Resources
	if entry, ok := p.cache[quiz.ID]; ok && entry.res.version == quiz.UpdatedAt {
		if !entry.res.Ready() || len(entry.res.Failed()) == 0 {
			p.cache[quiz.ID] = cachedResources{res: entry.res, lastUsed: now}
			p.mu.Unlock()
			return entry.res
		}
		prev = entry.res
	}
	res := newResources(quiz.UpdatedAt)
	urls := domain.MediaURLs(quiz)
	if prev != nil {
		// keep what was fetched, retry the rest
		var pending []string
		for _, url := range urls {
			if item, ok := prev.Get(url); ok {
				res.put(item)
				continue
			}
			pending = append(pending, url)
		}
		urls = pending
	}
	if len(urls) == 0 {
		close(res.done)
	}
	p.cache[quiz.ID] = cachedResources{res: res, lastUsed: now}
	p.mu.Unlock()

	if len(urls) > 0 {
		// Fetches outlive the request that triggered them.
		go p.run(context.WithoutCancel(ctx), quiz.ID, urls, res)
	}
	return res
}

func (p *Prefetcher) evictLocked(now time.Time) {
	if p.ttl <= 0 {
		return
	}
	for id, entry := range p.cache {
		if entry.res.Ready() && now.Sub(entry.lastUsed) > p.ttl {
			delete(p.cache, id)
		}
	}
}

func (p *Prefetcher) run(ctx context.Context, quizID string, urls []string, res *Resources) {
	defer close(res.done)

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for _, url := range urls {
		url := url // per-iteration copy (go 1.21 loop semantics)
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			item, err := p.fetcher.Fetch(fctx, url)
			if err != nil {
				metrics.PrefetchFailures.Inc()
				p.log.Warn("media prefetch failed", zap.String("quizId", quizID), zap.String("url", url), zap.Error(err))
				res.fail(url, err)
				return nil
			}
			item.URL = url
			item.Key = ResourceKey(url)
			res.put(item)
			return nil
		})
	}
	_ = g.Wait()
	p.log.Debug("media prefetch settled", zap.String("quizId", quizID), zap.Int("media", len(urls)), zap.Int("failed", len(res.Failed())))
}
