package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/vaultkeep/internal/apperr"
	"github.com/starford/vaultkeep/internal/cache"
	"github.com/starford/vaultkeep/internal/pathresolver"
)

var ctx = context.Background()

func tempVault(t *testing.T, opts ...Option) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir, opts...)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempVault(t)
	content := []byte("# Hello\nWorld\n")
	if err := s.Write(ctx, "note.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read(ctx, "note.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestRoundTripBinaryContent(t *testing.T) {
	s := tempVault(t)
	cases := [][]byte{
		{},
		{0x00, 0xff, 0x10, '\n', '\r'},
		bytes.Repeat([]byte("λ"), 4096),
	}
	for i, c := range cases {
		if err := s.Write(ctx, "bin.md", c); err != nil {
			t.Fatalf("case %d: Write: %v", i, err)
		}
		got, err := s.Read(ctx, "bin.md")
		if err != nil {
			t.Fatalf("case %d: Read: %v", i, err)
		}
		if !bytes.Equal(got, c) {
			t.Errorf("case %d: round trip mismatch", i)
		}
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempVault(t)
	if err := s.Write(ctx, "a/b/c.md", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read(ctx, "a/b/c.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestReadMissing(t *testing.T) {
	s := tempVault(t)
	_, err := s.Read(ctx, "nope.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestFileTooLarge(t *testing.T) {
	s := tempVault(t, WithMaxFileSize(8))
	err := s.Write(ctx, "big.md", []byte("0123456789"))
	if !errors.Is(err, apperr.ErrTooLarge) {
		t.Fatalf("write err = %v, want too large", err)
	}
	if err := os.WriteFile(filepath.Join(s.Root(), "big.md"), []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = s.Read(ctx, "big.md")
	if !errors.Is(err, apperr.ErrTooLarge) {
		t.Fatalf("read err = %v, want too large", err)
	}
}

func TestDelete(t *testing.T) {
	s := tempVault(t)
	_ = s.Write(ctx, "del.md", []byte("bye"))
	if err := s.Delete(ctx, "del.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read(ctx, "del.md"); err == nil {
		t.Error("expected error reading deleted file")
	}
	if err := s.Delete(ctx, "del.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v, want not found", err)
	}
}

func TestMove(t *testing.T) {
	s := tempVault(t)
	_ = s.Write(ctx, "old.md", []byte("data"))
	if err := s.Move(ctx, "old.md", "sub/new.md"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	got, err := s.Read(ctx, "sub/new.md")
	if err != nil {
		t.Fatalf("Read after move: %v", err)
	}
	if string(got) != "data" {
		t.Errorf("content = %q", got)
	}
	if _, err := s.Read(ctx, "old.md"); err == nil {
		t.Error("old path should not exist")
	}
}

func TestMoveDestinationExists(t *testing.T) {
	s := tempVault(t)
	_ = s.Write(ctx, "a.md", []byte("a"))
	_ = s.Write(ctx, "b.md", []byte("b"))
	if err := s.Move(ctx, "a.md", "b.md"); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	got, _ := s.Read(ctx, "b.md")
	if string(got) != "b" {
		t.Errorf("destination overwritten: %q", got)
	}
}

func TestCopy(t *testing.T) {
	s := tempVault(t)
	_ = s.Write(ctx, "a.md", []byte("same"))
	if err := s.Copy(ctx, "a.md", "copies/a.md"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	for _, p := range []string{"a.md", "copies/a.md"} {
		got, err := s.Read(ctx, p)
		if err != nil || string(got) != "same" {
			t.Errorf("%s = %q, %v", p, got, err)
		}
	}
}

func TestList(t *testing.T) {
	m, err := pathresolver.NewMatcher([]string{".obsidian"})
	if err != nil {
		t.Fatal(err)
	}
	s := tempVault(t, WithExtensions([]string{".md", "txt"}), WithExclusions(m))
	_ = s.Write(ctx, "a.md", []byte("a"))
	_ = s.Write(ctx, "sub/b.md", []byte("b"))
	_ = s.Write(ctx, "readme.txt", []byte("txt"))
	_ = s.Write(ctx, "image.png", []byte("png"))
	_ = s.Write(ctx, ".obsidian/app.md", []byte("cfg"))

	items, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var paths []string
	for _, it := range items {
		paths = append(paths, it.Path)
	}
	want := []string{"a.md", "readme.txt", "sub/b.md"}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempVault(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(ctx, p); !errors.Is(err, apperr.ErrPathTraversal) {
			t.Errorf("read %q: err = %v, want path traversal", p, err)
		}
		if err := s.Write(ctx, p, []byte("x")); !errors.Is(err, apperr.ErrPathTraversal) {
			t.Errorf("write %q: err = %v, want path traversal", p, err)
		}
	}
}

func TestAtomicWriteNoCorruption(t *testing.T) {
	s := tempVault(t)
	original := []byte("original content")
	_ = s.Write(ctx, "atomic.md", original)

	// Overwrite with new content.
	updated := []byte("updated content")
	if err := s.Write(ctx, "atomic.md", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read(ctx, "atomic.md")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	// Confirm no leftover temp files.
	matches, _ := filepath.Glob(filepath.Join(s.Root(), tempPrefix+"*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestFaultBeforeRenameKeepsOldContent(t *testing.T) {
	s := tempVault(t)
	_ = s.Write(ctx, "atomic.md", []byte("old content"))

	s.beforeRename = func(tmp string) error {
		// The new content is fully on disk in the temp file at this point.
		return errors.New("simulated crash")
	}
	err := s.Write(ctx, "atomic.md", []byte("new content that never lands"))
	if err == nil {
		t.Fatal("expected injected failure")
	}
	s.beforeRename = nil

	got, err := s.Read(ctx, "atomic.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "old content" {
		t.Errorf("content = %q, want old content intact", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.Root(), tempPrefix+"*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestConcurrentReadersNeverSeePartialWrite(t *testing.T) {
	s := tempVault(t)
	a := bytes.Repeat([]byte("a"), 64<<10)
	b := bytes.Repeat([]byte("b"), 64<<10)
	_ = s.Write(ctx, "race.md", a)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			next := a
			if i%2 == 0 {
				next = b
			}
			_ = s.Write(ctx, "race.md", next)
		}
		close(stop)
	}()

	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		got, err := s.Read(ctx, "race.md")
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if !bytes.Equal(got, a) && !bytes.Equal(got, b) {
			t.Fatalf("observed mixed content of length %d", len(got))
		}
	}
}

func TestWriteInvalidatesCache(t *testing.T) {
	s := tempVault(t, WithCache(cache.New(time.Hour)))
	_ = s.Write(ctx, "c.md", []byte("one"))
	if got, _ := s.Read(ctx, "c.md"); string(got) != "one" {
		t.Fatalf("got %q", got)
	}
	_ = s.Write(ctx, "c.md", []byte("two"))
	if got, _ := s.Read(ctx, "c.md"); string(got) != "two" {
		t.Errorf("stale read after write: %q", got)
	}
	_ = s.Delete(ctx, "c.md")
	if _, err := s.Read(ctx, "c.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("read after delete: %v", err)
	}
}

func TestCacheServesWithinTTL(t *testing.T) {
	s := tempVault(t, WithCache(cache.New(time.Hour)))
	_ = s.Write(ctx, "c.md", []byte("cached"))
	_, _ = s.Read(ctx, "c.md")

	// Change the file behind the store's back: the cached copy is still served.
	_ = os.WriteFile(filepath.Join(s.Root(), "c.md"), []byte("external"), 0o644)
	got, _ := s.Read(ctx, "c.md")
	if string(got) != "cached" {
		t.Errorf("got %q, want cached content", got)
	}
}

func TestInvalidateDropsExternalChange(t *testing.T) {
	s := tempVault(t, WithCache(cache.New(time.Hour)))
	_ = s.Write(ctx, "c.md", []byte("cached"))
	_, _ = s.Read(ctx, "c.md")

	_ = os.WriteFile(filepath.Join(s.Root(), "c.md"), []byte("external"), 0o644)
	s.Invalidate("./c.md")
	got, _ := s.Read(ctx, "c.md")
	if string(got) != "external" {
		t.Errorf("got %q after invalidate, want external", got)
	}
}

func TestLockRegistryPruned(t *testing.T) {
	s := tempVault(t)
	for _, p := range []string{"a.md", "b.md", "c.md"} {
		_ = s.Write(ctx, p, []byte(p))
	}
	_ = s.Move(ctx, "a.md", "z.md")
	_ = s.Delete(ctx, "b.md")
	if n := s.locks.len(); n != 0 {
		t.Errorf("lock registry holds %d entries after all operations finished", n)
	}
}

func TestLockTimeout(t *testing.T) {
	s := tempVault(t, WithLockTimeout(20*time.Millisecond))
	release, err := s.locks.acquire(ctx, "held.md", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	err = s.Write(ctx, "held.md", []byte("x"))
	if !errors.Is(err, apperr.ErrConcurrency) {
		t.Fatalf("err = %v, want concurrency error", err)
	}
}

func TestDistinctPathsDoNotBlock(t *testing.T) {
	s := tempVault(t, WithLockTimeout(time.Second))
	release, err := s.locks.acquire(ctx, "held.md", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	if err := s.Write(ctx, "other.md", []byte("x")); err != nil {
		t.Fatalf("write to unrelated path blocked: %v", err)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "vaultkeep-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestFSThroughProvider(t *testing.T) {
	var p Provider = tempVault(t)
	if !filepath.IsAbs(p.Root()) {
		t.Errorf("root %q is not absolute", p.Root())
	}
	if err := p.Write(ctx, "a.md", []byte("one")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := p.Move(ctx, "a.md", "sub/b.md"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if ok, err := p.Exists("a.md"); err != nil || ok {
		t.Errorf("a.md exists after move: %v, %v", ok, err)
	}
	got, err := p.Read(ctx, "sub/b.md")
	if err != nil || string(got) != "one" {
		t.Errorf("Read = %q, %v", got, err)
	}
	if p.Eligible(tempPrefix + "x.md") {
		t.Error("temp files must not be eligible")
	}
	p.Invalidate("sub/b.md")
	if err := p.Delete(ctx, "sub/b.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := p.Stat("sub/b.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Stat after delete = %v", err)
	}
}
