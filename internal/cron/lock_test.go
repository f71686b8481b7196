package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeRedisStore struct {
	values map[string]string
}

func newFakeRedisStore() *fakeRedisStore {
	return &fakeRedisStore{values: map[string]string{}}
}

func (f *fakeRedisStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeRedisStore) Get(ctx context.Context, key string) (string, error) {
	value, ok := f.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (f *fakeRedisStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func TestRedisLockAcquireRelease(t *testing.T) {
	store := newFakeRedisStore()
	lock, err := NewRedisLock(store, "test:lock", time.Hour)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}

	ok, err := lock.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, ok=%v err=%v", ok, err)
	}

	second, err := NewRedisLock(store, "test:lock", time.Hour)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	ok, err = second.Acquire(context.Background())
	if err != nil || ok {
		t.Fatalf("expected second acquire to be blocked, ok=%v err=%v", ok, err)
	}

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	ok, err = second.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected acquire after release to succeed, ok=%v err=%v", ok, err)
	}
}

func TestRedisLockReleaseRespectsOwnership(t *testing.T) {
	store := newFakeRedisStore()
	lock, err := NewRedisLock(store, "test:lock", time.Hour)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	if _, err := lock.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// Simulate another instance taking over after the lease lapsed.
	store.values["test:lock"] = "someone-else"

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if store.values["test:lock"] != "someone-else" {
		t.Fatal("release must not delete a lock it no longer owns")
	}
}

func TestRedisLockReleaseWithoutAcquireIsNoop(t *testing.T) {
	lock, err := NewRedisLock(newFakeRedisStore(), "test:lock", time.Hour)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
}
