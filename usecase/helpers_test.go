package usecase

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"video-gateway/domain/model"
)

var errOffline = errors.New("network offline")

// fakeNetwork answers fetches from a handler and counts every call.
type fakeNetwork struct {
	handler func(req *model.Request) (*model.Response, error)
	calls   atomic.Int64

	mu   sync.Mutex
	seen []string
}

func (f *fakeNetwork) Fetch(_ context.Context, req *model.Request) (*model.Response, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, req.URL)
	f.mu.Unlock()
	return f.handler(req)
}

func (f *fakeNetwork) Head(_ context.Context, url string) (http.Header, int64, error) {
	resp, err := f.handler(&model.Request{Method: http.MethodHead, URL: url})
	if err != nil {
		return nil, 0, err
	}
	return resp.Headers, int64(len(resp.Body)), nil
}

func okResponse(body string, contentType string) *model.Response {
	h := http.Header{}
	h.Set("Content-Type", contentType)
	return &model.Response{StatusCode: http.StatusOK, Headers: h, Body: []byte(body)}
}

func getRequest(url string) *model.Request {
	return &model.Request{Method: http.MethodGet, URL: url, Headers: http.Header{}}
}

// MockCacheStore is a testify mock of repository.ICacheStore.
type MockCacheStore struct {
	mock.Mock
}

func (m *MockCacheStore) Open(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func (m *MockCacheStore) Names(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockCacheStore) Drop(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func (m *MockCacheStore) Match(ctx context.Context, name, key string) (*model.CachedEntry, error) {
	args := m.Called(ctx, name, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CachedEntry), args.Error(1)
}

func (m *MockCacheStore) Put(ctx context.Context, name string, entry *model.CachedEntry) error {
	return m.Called(ctx, name, entry).Error(0)
}

func (m *MockCacheStore) Count(ctx context.Context, name string) (int, error) {
	args := m.Called(ctx, name)
	return args.Int(0), args.Error(1)
}

// fakePlayer records what the quality controller does to the live player.
type fakePlayer struct {
	mu       sync.Mutex
	source   string
	loads    int
	current  float64
	buffered []model.TimeRange
}

func (p *fakePlayer) Play() error          { return nil }
func (p *fakePlayer) Pause() error         { return nil }
func (p *fakePlayer) SetMuted(bool) error  { return nil }
func (p *fakePlayer) CurrentTime() float64 { p.mu.Lock(); defer p.mu.Unlock(); return p.current }
func (p *fakePlayer) Source() string       { p.mu.Lock(); defer p.mu.Unlock(); return p.source }

func (p *fakePlayer) Seek(s float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = s
	return nil
}

func (p *fakePlayer) SetSource(u string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = u
	return nil
}

func (p *fakePlayer) Load() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loads++
	return nil
}

func (p *fakePlayer) Buffered() []model.TimeRange {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.TimeRange(nil), p.buffered...)
}

func (p *fakePlayer) setBuffer(current, end float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = current
	p.buffered = []model.TimeRange{{Start: 0, End: end}}
}

func (p *fakePlayer) loadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loads
}

// fixedClock returns a controllable time source.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
