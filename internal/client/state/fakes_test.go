package state

import (
	"context"
	"sync"

	"github.com/akulinin/pomosync/internal/client/api"
	"github.com/akulinin/pomosync/internal/errs"
	"github.com/akulinin/pomosync/internal/model"
)

type fakeAPI struct {
	registerFn func(req api.RegisterRequest) (api.Session, error)
	loginFn    func(username, password string) (api.Session, error)
	meFn       func() (model.User, error)
	configsFn  func() ([]model.Configuration, error)
	createFn   func(cfg model.Configuration) (model.Configuration, error)
	updateFn   func(id string, cfg model.Configuration) (model.Configuration, error)
	deleteFn   func(id string) error
	quickFn    func(ids []string) ([]string, error)
}

func (f *fakeAPI) Register(_ context.Context, req api.RegisterRequest) (api.Session, error) {
	if f.registerFn == nil {
		return api.Session{}, errs.ErrServerFault
	}
	return f.registerFn(req)
}

func (f *fakeAPI) Login(_ context.Context, username, password string) (api.Session, error) {
	if f.loginFn == nil {
		return api.Session{}, errs.ErrServerFault
	}
	return f.loginFn(username, password)
}

func (f *fakeAPI) Me(_ context.Context) (model.User, error) {
	if f.meFn == nil {
		return model.User{}, errs.ErrServerFault
	}
	return f.meFn()
}

func (f *fakeAPI) Configurations(_ context.Context) ([]model.Configuration, error) {
	if f.configsFn == nil {
		return nil, nil
	}
	return f.configsFn()
}

func (f *fakeAPI) CreateConfiguration(_ context.Context, cfg model.Configuration) (model.Configuration, error) {
	if f.createFn == nil {
		return model.Configuration{}, errs.ErrServerFault
	}
	return f.createFn(cfg)
}

func (f *fakeAPI) UpdateConfiguration(_ context.Context, id string, cfg model.Configuration) (model.Configuration, error) {
	if f.updateFn == nil {
		return model.Configuration{}, errs.ErrServerFault
	}
	return f.updateFn(id, cfg)
}

func (f *fakeAPI) DeleteConfiguration(_ context.Context, id string) error {
	if f.deleteFn == nil {
		return errs.ErrServerFault
	}
	return f.deleteFn(id)
}

func (f *fakeAPI) UpdateQuickAccess(_ context.Context, ids []string) ([]string, error) {
	if f.quickFn == nil {
		return nil, errs.ErrServerFault
	}
	return f.quickFn(ids)
}

// memCache is an in-memory stand-in for the SQLite store.
type memCache struct {
	mu      sync.Mutex
	configs map[string]model.Configuration
	user    *model.User
	cleared int
}

func newMemCache() *memCache {
	return &memCache{configs: make(map[string]model.Configuration)}
}

func (c *memCache) Configurations(context.Context) ([]model.Configuration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Configuration, 0, len(c.configs))
	for _, cfg := range c.configs {
		out = append(out, cfg)
	}
	return out, nil
}

func (c *memCache) PutConfiguration(_ context.Context, cfg model.Configuration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs[cfg.ID] = cfg
	return nil
}

func (c *memCache) DeleteConfiguration(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.configs, id)
	return nil
}

func (c *memCache) User(context.Context) (*model.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil, errs.ErrNotFound
	}
	u := *c.user
	return &u, nil
}

func (c *memCache) PutUser(_ context.Context, u model.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = &u
	return nil
}

func (c *memCache) DeleteUser(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = nil
	return nil
}

func (c *memCache) ClearAll(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs = make(map[string]model.Configuration)
	c.user = nil
	c.cleared++
	return nil
}

func (c *memCache) config(id string) (model.Configuration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg, ok := c.configs[id]
	return cfg, ok
}

type fakeNet struct {
	mu     sync.Mutex
	online bool
	subs   []func(bool)
}

func (n *fakeNet) Online() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

func (n *fakeNet) Subscribe(fn func(online bool)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, fn)
}

func (n *fakeNet) set(online bool) {
	n.mu.Lock()
	n.online = online
	subs := append([]func(bool){}, n.subs...)
	n.mu.Unlock()
	for _, fn := range subs {
		fn(online)
	}
}

type fakeTokens struct {
	mu  sync.Mutex
	tok string
}

func (t *fakeTokens) Token() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tok
}

func (t *fakeTokens) Save(token string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tok = token
	return nil
}

func (t *fakeTokens) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tok = ""
	return nil
}

type fakeSync struct {
	mu    sync.Mutex
	calls int
	err   error
	done  chan struct{}
}

func (s *fakeSync) SyncAll(context.Context) error {
	s.mu.Lock()
	s.calls++
	err := s.err
	done := s.done
	s.mu.Unlock()
	if done != nil {
		close(done)
		s.mu.Lock()
		s.done = nil
		s.mu.Unlock()
	}
	return err
}

func (s *fakeSync) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type env struct {
	api    *fakeAPI
	cache  *memCache
	net    *fakeNet
	tokens *fakeTokens
	sync   *fakeSync
	m      *Manager
}

func newEnv(online bool) *env {
	e := &env{
		api:    &fakeAPI{},
		cache:  newMemCache(),
		net:    &fakeNet{online: online},
		tokens: &fakeTokens{},
		sync:   &fakeSync{},
	}
	e.m = New(Options{
		API:    e.api,
		Cache:  e.cache,
		Sync:   e.sync,
		Net:    e.net,
		Tokens: e.tokens,
	})
	return e
}
