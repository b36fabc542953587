// Package repotest holds the behaviour every KVStore backend must share.
package repotest

import (
	"context"
	"testing"

	"github.com/hamed0406/endpointresolver/internal/repo"
)

func Run(t *testing.T, s repo.KVStore) {
	t.Helper()
	ctx := context.Background()
	const key = "endpointresolver:api_endpoint"

	// none yet
	if v, ok, err := s.GetItem(ctx, key); err != nil || ok || v != "" {
		t.Fatalf("expected miss, got %q ok=%v err=%v", v, ok, err)
	}

	if err := s.SetItem(ctx, key, `{"url":"http://a:1","timestamp":1}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.GetItem(ctx, key)
	if err != nil || !ok || v != `{"url":"http://a:1","timestamp":1}` {
		t.Fatalf("unexpected get: %q ok=%v err=%v", v, ok, err)
	}

	// overwrite entirely
	if err := s.SetItem(ctx, key, `{"url":"http://b:2","timestamp":2}`); err != nil {
		t.Fatalf("set2: %v", err)
	}
	if v, _, _ := s.GetItem(ctx, key); v != `{"url":"http://b:2","timestamp":2}` {
		t.Fatalf("overwrite not applied: %q", v)
	}

	if err := s.RemoveItem(ctx, key); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, err := s.GetItem(ctx, key); err != nil || ok {
		t.Fatalf("expected miss after remove, ok=%v err=%v", ok, err)
	}
	// removing a missing key is not an error
	if err := s.RemoveItem(ctx, key); err != nil {
		t.Fatalf("remove missing: %v", err)
	}
}
