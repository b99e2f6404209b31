package hotreload

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctfanout/ctstream/internal/config"
)

func TestStartDisabledWithoutPath(t *testing.T) {
	w := New(Reloadable{Auth: config.Auth{HeaderName: "Authorization"}})
	w.Start("")

	if got := w.Current().Auth.HeaderName; got != "Authorization" {
		t.Fatalf("Current().Auth.HeaderName = %q, want unchanged default", got)
	}
}

func TestReloadOnFileWriteUpdatesCurrentAndNotifiesSubscriber(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("auth:\n  enabled: false\n  header_name: Authorization\n"), 0o644); err != nil {
		t.Fatalf("write initial file: %v", err)
	}

	w := New(Reloadable{})
	sub := w.Subscribe()
	w.Start(path)

	if err := os.WriteFile(path, []byte("auth:\n  enabled: true\n  header_name: X-Api-Token\n"), 0o644); err != nil {
		t.Fatalf("rewrite file: %v", err)
	}

	select {
	case r := <-sub:
		if !r.Auth.Enabled || r.Auth.HeaderName != "X-Api-Token" {
			t.Fatalf("unexpected reloaded config: %+v", r)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload notification")
	}

	if got := w.Current().Auth.HeaderName; got != "X-Api-Token" {
		t.Fatalf("Current().Auth.HeaderName = %q, want X-Api-Token", got)
	}
}

func TestLoadReloadableOnlyOverridesSectionsPresent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("rate_limit:\n  enabled: true\n  per_second: 42\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	r, err := loadReloadable(path)
	if err != nil {
		t.Fatalf("loadReloadable: %v", err)
	}
	if !r.RateLimit.Enabled || r.RateLimit.PerSecond != 42 {
		t.Fatalf("unexpected rate limit: %+v", r.RateLimit)
	}
	if r.Auth.HeaderName != "" {
		t.Fatalf("expected zero-value Auth since it was absent from the file, got %+v", r.Auth)
	}
}
