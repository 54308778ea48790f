package versioncache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/mmizutani/wandbox/internal/versioncache"
)

func TestNoopAlwaysMisses(t *testing.T) {
	c := versioncache.Noop{}
	if _, ok := c.Get(context.Background()); ok {
		t.Fatal("Noop.Get reported a hit")
	}
	c.Set(context.Background(), []byte("payload"))
	if _, ok := c.Get(context.Background()); ok {
		t.Fatal("Noop.Get reported a hit after Set")
	}
}

func TestRedisRoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)

	cache := versioncache.NewRedis(srv.Addr(), "cattleshed:versions", time.Minute)
	defer cache.Close()

	ctx := context.Background()
	if _, ok := cache.Get(ctx); ok {
		t.Fatal("Get reported a hit before any Set")
	}

	cache.Set(ctx, []byte(`{"name":"gcc-head"}`))

	payload, ok := cache.Get(ctx)
	if !ok {
		t.Fatal("Get reported a miss after Set")
	}
	if string(payload) != `{"name":"gcc-head"}` {
		t.Errorf("payload = %q, want the stored JSON", payload)
	}
}

func TestRedisExpiresPastTTL(t *testing.T) {
	srv := miniredis.RunT(t)

	cache := versioncache.NewRedis(srv.Addr(), "cattleshed:versions", time.Second)
	defer cache.Close()

	ctx := context.Background()
	cache.Set(ctx, []byte("stale"))
	srv.FastForward(2 * time.Second)

	if _, ok := cache.Get(ctx); ok {
		t.Fatal("Get reported a hit past the configured TTL")
	}
}

func TestRedisDegradesToMissOnUnreachableServer(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	cache := versioncache.NewRedis(addr, "cattleshed:versions", time.Minute)
	defer cache.Close()

	if _, ok := cache.Get(context.Background()); ok {
		t.Fatal("Get reported a hit against a closed server")
	}
}
