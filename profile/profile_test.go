package profile_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/balogun-pappy/advoc/logging"
	"github.com/balogun-pappy/advoc/profile"
)

func newResolver(t *testing.T, files ...string) (*profile.Resolver, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "profile_pics")
	r, err := profile.NewResolver(dir, "default.png", logging.Nop())
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte(f), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return r, dir
}

func TestResolve(t *testing.T) {
	r, _ := newResolver(t, "ada.png", "bob.jpg", ".carl.tmp")

	tests := []struct {
		user, want string
	}{
		{"ada", "ada.png"},
		{"bob", "bob.jpg"},
		{"carl", "default.png"},
		{"dora", "default.png"},
	}
	for _, tc := range tests {
		if got := r.Resolve(tc.user); got != tc.want {
			t.Errorf("Resolve(%q) = %q, want %q", tc.user, got, tc.want)
		}
	}
}

func TestResolvePrefixMatch(t *testing.T) {
	// A user whose name prefixes another's picks up the first match in
	// lexical order.
	r, _ := newResolver(t, "annabel.png")
	if got := r.Resolve("ann"); got != "annabel.png" {
		t.Fatalf("expected prefix match, got %q", got)
	}
}

func TestBatchMemoizes(t *testing.T) {
	r, dir := newResolver(t, "ada.png")
	resolve := r.Batch()
	if got := resolve("ada"); got != "ada.png" {
		t.Fatalf("expected ada.png, got %q", got)
	}
	os.Remove(filepath.Join(dir, "ada.png"))
	if got := resolve("ada"); got != "ada.png" {
		t.Fatalf("expected memoized ada.png, got %q", got)
	}
	if got := r.Batch()("ada"); got != "default.png" {
		t.Fatalf("expected fresh batch to see removal, got %q", got)
	}
}

func TestSave(t *testing.T) {
	r, dir := newResolver(t, "ada.jpg", "adam.png")

	name, err := r.Save("ada", "selfie.PNG", strings.NewReader("new"))
	if err != nil {
		t.Fatal(err)
	}
	if name != "ada.png" {
		t.Fatalf("expected ada.png, got %q", name)
	}
	if _, err := os.Stat(filepath.Join(dir, "ada.jpg")); !os.IsNotExist(err) {
		t.Fatal("expected previous picture to be removed")
	}
	if _, err := os.Stat(filepath.Join(dir, "adam.png")); err != nil {
		t.Fatal("another user's picture was removed")
	}
	data, _ := os.ReadFile(filepath.Join(dir, "ada.png"))
	if string(data) != "new" {
		t.Fatalf("unexpected content %q", data)
	}
	if got := r.Resolve("ada"); got != "ada.png" {
		t.Fatalf("Resolve after Save = %q", got)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestSaveRejectsPathNames(t *testing.T) {
	r, _ := newResolver(t)
	for _, user := range []string{"", "../x", `a\b`, ".hidden"} {
		if _, err := r.Save(user, "a.png", strings.NewReader("x")); err == nil {
			t.Errorf("expected error for username %q", user)
		}
	}
}
