package agent

import (
	"context"
	"testing"
)

func TestTutorialKey(t *testing.T) {
	got := TutorialKey("learn-git-a1b2c3d4", "c1", 3)
	want := "learn-git-a1b2c3d4/concepts/c1/v3.md"
	if got != want {
		t.Errorf("TutorialKey = %q, want %q", got, want)
	}
}

func TestMemObjectStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemObjectStore()

	url, err := s.Put(ctx, "r1/concepts/c1/v1.md", []byte("# hello"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "mem://r1/concepts/c1/v1.md" {
		t.Errorf("url = %q", url)
	}

	body, err := s.Get(ctx, "r1/concepts/c1/v1.md")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != "# hello" {
		t.Errorf("body = %q", body)
	}

	if _, err := s.Get(ctx, "missing"); err == nil {
		t.Error("Get of missing key should fail")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d", s.Len())
	}
}
