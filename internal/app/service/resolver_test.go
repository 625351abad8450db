package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sifan077/EphemURL/internal/app/keygen"
	"github.com/sifan077/EphemURL/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ResolverSuite struct {
	suite.Suite

	store     *memStore
	clock     *fakeClock
	gen       *keygen.Generator
	scheduler *countingScheduler
	registrar *Registrar
	resolver  *Resolver
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	var err error
	s.store = newMemStore()
	s.clock = newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s.gen, err = keygen.New(keygen.DefaultLength, keygen.DefaultAlphabet)
	s.Require().NoError(err)
	s.scheduler = &countingScheduler{}
	s.registrar = NewRegistrar(RegistrarDeps{Store: s.store, Keys: s.gen, TTL: time.Hour, Now: s.clock.Now})
	s.resolver = NewResolver(ResolverDeps{Store: s.store, Keys: s.gen, Sweeper: s.scheduler, Now: s.clock.Now})
}

func (s *ResolverSuite) TestRoundTrip() {
	ctx := context.Background()
	m, err := s.registrar.Register(ctx, "example.com")
	s.Require().NoError(err)

	got, err := s.resolver.Resolve(ctx, m.Key)
	s.Require().NoError(err)
	s.Equal("example.com", got.TargetURL)
	s.Equal(m.ID, got.ID)
}

func (s *ResolverSuite) TestLiveUntilExpiryInclusive() {
	ctx := context.Background()
	m, err := s.registrar.Register(ctx, "example.com")
	s.Require().NoError(err)

	s.clock.Advance(time.Hour)
	_, err = s.resolver.Resolve(ctx, m.Key)
	s.NoError(err, "a mapping is still live at its expiry instant")

	s.clock.Advance(time.Nanosecond)
	_, err = s.resolver.Resolve(ctx, m.Key)
	s.ErrorIs(err, ErrNotFound)
}

func (s *ResolverSuite) TestZeroTTLExpiresImmediately() {
	ctx := context.Background()
	r := NewRegistrar(RegistrarDeps{Store: s.store, Keys: s.gen, TTL: 0, Now: s.clock.Now})
	m, err := r.Register(ctx, "example.com")
	s.Require().NoError(err)

	s.clock.Advance(time.Millisecond)
	_, err = s.resolver.Resolve(ctx, m.Key)
	s.ErrorIs(err, ErrNotFound)
}

func (s *ResolverSuite) TestUnknownKeysAreNotFound() {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		key, err := s.gen.Generate()
		s.Require().NoError(err)
		_, err = s.resolver.Resolve(ctx, key)
		s.ErrorIs(err, ErrNotFound, "key %q", key)
	}
	s.Equal(int64(50), s.scheduler.n.Load())
}

func (s *ResolverSuite) TestMalformedKeySkipsStore() {
	_, err := s.resolver.Resolve(context.Background(), "not a key!")
	s.ErrorIs(err, ErrNotFound)
	s.Equal(int64(0), s.store.finds.Load())
	s.Equal(int64(1), s.scheduler.n.Load())
}

func (s *ResolverSuite) TestEveryResolveSchedulesSweep() {
	ctx := context.Background()
	m, err := s.registrar.Register(ctx, "example.com")
	s.Require().NoError(err)

	for i := 0; i < 3; i++ {
		_, err := s.resolver.Resolve(ctx, m.Key)
		s.Require().NoError(err)
	}
	s.Equal(int64(3), s.scheduler.n.Load())
}

func (s *ResolverSuite) TestStoreFailureIsUnavailable() {
	boom := errors.New("read timeout")
	s.store.findHook = func(context.Context, string) error { return boom }

	key, err := s.gen.Generate()
	s.Require().NoError(err)
	_, err = s.resolver.Resolve(context.Background(), key)
	s.ErrorIs(err, ErrStoreUnavailable)
	s.NotErrorIs(err, ErrNotFound)
	s.Equal(int64(1), s.scheduler.n.Load())
}

func (s *ResolverSuite) TestSweepFailureDoesNotAffectResolve() {
	ctx := context.Background()
	s.store.deleteHook = func(context.Context) error { return errors.New("disk full") }
	rec := NewReclaimer(ReclaimerDeps{Store: s.store, Now: s.clock.Now})
	resolver := NewResolver(ResolverDeps{Store: s.store, Keys: s.gen, Sweeper: rec, Now: s.clock.Now})
	rec.Start()
	defer rec.Stop()

	m, err := s.registrar.Register(ctx, "example.com")
	s.Require().NoError(err)

	got, err := resolver.Resolve(ctx, m.Key)
	s.Require().NoError(err)
	s.Equal("example.com", got.TargetURL)
	s.Eventually(func() bool { return s.store.deletes.Load() > 0 }, time.Second, 5*time.Millisecond)
}

func TestResolver_WithoutScheduler(t *testing.T) {
	store := newMemStore()
	store.put(modelWithKey("abc", time.Now().Add(time.Hour)))
	r := NewResolver(ResolverDeps{Store: store})

	m, err := r.Resolve(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", m.Key)
}

func TestTargetLocation(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"example.com", "https://example.com"},
		{"example.com/path?q=1", "https://example.com/path?q=1"},
		{"http://example.com", "http://example.com"},
		{"HTTPS://example.com", "HTTPS://example.com"},
		{"ftp.example.com", "https://ftp.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			assert.Equal(t, tt.want, TargetLocation(&model.Mapping{TargetURL: tt.target}))
		})
	}
}
