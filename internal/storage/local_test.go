package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLocalStorage(t *testing.T) {
	t.Run("creates directories if not exist", func(t *testing.T) {
		root := t.TempDir()
		dirs := Dirs{
			Upload: filepath.Join(root, "uploads"),
			Result: filepath.Join(root, "results"),
			Temp:   filepath.Join(root, "tmp"),
		}

		storage, err := NewLocalStorage(dirs)
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		if storage.Dirs() != dirs {
			t.Errorf("Dirs() = %v, want %v", storage.Dirs(), dirs)
		}

		for _, dir := range []string{dirs.Upload, dirs.Result, dirs.Temp} {
			info, err := os.Stat(dir)
			if err != nil {
				t.Fatalf("directory %s not created: %v", dir, err)
			}
			if !info.IsDir() {
				t.Errorf("%s: expected directory, got file", dir)
			}
		}
	})

	t.Run("uses default directories when empty", func(t *testing.T) {
		storage, err := NewLocalStorage(Dirs{})
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		root := filepath.Join(os.TempDir(), "artstyle")
		want := Dirs{
			Upload: filepath.Join(root, "uploads"),
			Result: filepath.Join(root, "results"),
			Temp:   filepath.Join(root, "tmp"),
		}
		if storage.Dirs() != want {
			t.Errorf("Dirs() = %v, want %v", storage.Dirs(), want)
		}
	})
}

func TestLocalStorage_SaveUpload(t *testing.T) {
	storage := setupTestStorage(t)

	t.Run("saves data under the given name", func(t *testing.T) {
		ctx := context.Background()

		path, err := storage.SaveUpload(ctx, "abc_photo.png", bytes.NewReader([]byte("test data")))
		if err != nil {
			t.Fatalf("SaveUpload() error = %v", err)
		}

		if want := filepath.Join(storage.Dirs().Upload, "abc_photo.png"); path != want {
			t.Errorf("path = %s, want %s", path, want)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read saved file: %v", err)
		}
		if string(content) != "test data" {
			t.Errorf("got %q, want %q", string(content), "test data")
		}
	})

	t.Run("strips directory components", func(t *testing.T) {
		path, err := storage.SaveUpload(context.Background(), "../../etc/evil.png", strings.NewReader("x"))
		if err != nil {
			t.Fatalf("SaveUpload() error = %v", err)
		}
		if filepath.Dir(path) != storage.Dirs().Upload {
			t.Errorf("path %s escaped the upload directory", path)
		}
		if filepath.Base(path) != "evil.png" {
			t.Errorf("base = %s, want evil.png", filepath.Base(path))
		}
	})

	t.Run("rejects empty names", func(t *testing.T) {
		_, err := storage.SaveUpload(context.Background(), "..", strings.NewReader("x"))
		if !errors.Is(err, ErrInvalidName) {
			t.Errorf("expected ErrInvalidName, got %v", err)
		}
	})

	t.Run("leaves no partial file on read error", func(t *testing.T) {
		_, err := storage.SaveUpload(context.Background(), "broken.png", &failingReader{})
		if err == nil {
			t.Fatal("expected error")
		}

		entries, err := os.ReadDir(storage.Dirs().Upload)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".partial_") || e.Name() == "broken.png" {
				t.Errorf("unexpected leftover %s", e.Name())
			}
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := storage.SaveUpload(ctx, "test.png", bytes.NewReader([]byte("data")))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestLocalStorage_Open(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	t.Run("opens saved file", func(t *testing.T) {
		path, err := storage.SaveUpload(ctx, "load_test.png", bytes.NewReader([]byte("load data")))
		if err != nil {
			t.Fatalf("SaveUpload() error = %v", err)
		}

		reader, err := storage.Open(ctx, path)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer func() { _ = reader.Close() }()

		content, err := io.ReadAll(reader)
		if err != nil {
			t.Fatalf("failed to read: %v", err)
		}
		if string(content) != "load data" {
			t.Errorf("got %q, want %q", string(content), "load data")
		}
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		_, err := storage.Open(ctx, "/non/existent/file")
		if err == nil {
			t.Error("expected error for non-existent file")
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := storage.Open(ctx, "/some/path")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestLocalStorage_ResultPath(t *testing.T) {
	storage := setupTestStorage(t)

	got := storage.ResultPath("../x/abc_styled.mp4")
	if want := filepath.Join(storage.Dirs().Result, "abc_styled.mp4"); got != want {
		t.Errorf("ResultPath() = %s, want %s", got, want)
	}
}

func TestLocalStorage_NewWorkspace(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	ws, err := storage.NewWorkspace(ctx, "job1")
	if err != nil {
		t.Fatalf("NewWorkspace() error = %v", err)
	}

	if filepath.Dir(ws.Dir()) != storage.Dirs().Temp {
		t.Errorf("workspace %s not under temp dir", ws.Dir())
	}
	if !strings.HasPrefix(filepath.Base(ws.Dir()), "job1_") {
		t.Errorf("workspace %s missing prefix", ws.Dir())
	}

	if got, want := ws.FramePath(7), filepath.Join(ws.Dir(), "frame_000007.png"); got != want {
		t.Errorf("FramePath(7) = %s, want %s", got, want)
	}
	if got, want := ws.FramePattern(), filepath.Join(ws.Dir(), "frame_%06d.png"); got != want {
		t.Errorf("FramePattern() = %s, want %s", got, want)
	}

	if err := os.WriteFile(ws.FramePath(0), []byte("frame"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := ws.Remove(); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(ws.Dir()); !os.IsNotExist(err) {
		t.Errorf("workspace %s still exists", ws.Dir())
	}
	if err := ws.Remove(); err != nil {
		t.Errorf("second Remove() error = %v", err)
	}

	other, err := storage.NewWorkspace(ctx, "job1")
	if err != nil {
		t.Fatalf("NewWorkspace() error = %v", err)
	}
	defer func() { _ = other.Remove() }()
	if other.Dir() == ws.Dir() {
		t.Error("workspaces must be distinct")
	}
}

func TestLocalStorage_CleanupTemp(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	t.Run("removes files", func(t *testing.T) {
		var paths []string
		for _, name := range []string{"a.png", "b.png", "c.png"} {
			path, err := storage.SaveUpload(ctx, name, bytes.NewReader([]byte("data")))
			if err != nil {
				t.Fatalf("SaveUpload() error = %v", err)
			}
			paths = append(paths, path)
		}

		err := storage.CleanupTemp(ctx, paths)
		if err != nil {
			t.Fatalf("CleanupTemp() error = %v", err)
		}

		for _, p := range paths {
			if _, err := os.Stat(p); !os.IsNotExist(err) {
				t.Errorf("file %s still exists", p)
			}
		}
	})

	t.Run("ignores non-existent files", func(t *testing.T) {
		err := storage.CleanupTemp(ctx, []string{"/non/existent/file"})
		if err != nil {
			t.Errorf("CleanupTemp() should ignore non-existent files, got %v", err)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := storage.CleanupTemp(ctx, []string{"/some/path"})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestLocalStorage_UploadToS3(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	_, err := storage.UploadToS3(ctx, "key", bytes.NewReader([]byte("data")))
	if err != ErrS3NotConfigured {
		t.Errorf("expected ErrS3NotConfigured, got %v", err)
	}
}

func setupTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	root := t.TempDir()

	storage, err := NewLocalStorage(Dirs{
		Upload: filepath.Join(root, "uploads"),
		Result: filepath.Join(root, "results"),
		Temp:   filepath.Join(root, "tmp"),
	})
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return storage
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}
