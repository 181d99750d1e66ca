package repack

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	store "github.com/vesper-ml/vesper-go/internal/storage/objectstore"
)

type memStore struct {
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[bucket+"/"+key] = data
	return nil
}

func (m *memStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, store.ObjectInfo, error) {
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, store.ObjectInfo{}, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(data)), store.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memStore) Stat(ctx context.Context, bucket, key string) (store.ObjectInfo, error) {
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return store.ObjectInfo{}, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return store.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memStore) Delete(ctx context.Context, bucket, key string) error {
	delete(m.objects, bucket+"/"+key)
	return nil
}

func createFileTree(t *testing.T, root string, files []string) {
	t.Helper()
	for _, file := range files {
		path := filepath.Join(root, file)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := os.WriteFile(path, []byte(file), 0o644); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func tarAndUpload(t *testing.T, ms *memStore, dir, bucket, key string) {
	t.Helper()
	var buf bytes.Buffer
	if err := archiveDir(&buf, dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ms.Put(context.Background(), bucket, key, &buf, int64(buf.Len()), archiveContentType); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func listUploadedFiles(t *testing.T, ms *memStore, bucket, key string) []string {
	t.Helper()
	body, _, err := ms.Get(context.Background(), bucket, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer body.Close()
	dir := t.TempDir()
	if err := extractArchive(body, dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var files []string
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sort.Strings(files)
	return files
}

func TestInjectIntoArchivePreservesFiles(t *testing.T) {
	ms := newMemStore()
	modelDir := t.TempDir()
	createFileTree(t, modelDir, []string{
		"aa",
		"foo/inference.py",
	})
	tarAndUpload(t, ms, modelDir, "fake", "location/sourcedir.tar.gz")

	uri := "s3://fake/location/sourcedir.tar.gz"
	if err := InjectIntoArchive(context.Background(), ms, uri); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	files := listUploadedFiles(t, ms, "fake", "location/sourcedir.tar.gz")
	want := []string{"_bootstrap.py", "aa", "foo/inference.py"}
	if !reflect.DeepEqual(files, want) {
		t.Fatalf("files=%v, want %v", files, want)
	}
}

func TestInjectIntoArchiveRejectsLocalReference(t *testing.T) {
	if err := InjectIntoArchive(context.Background(), newMemStore(), "/tmp/sourcedir.tar.gz"); err == nil {
		t.Fatalf("expected error for non object-store reference")
	}
}

func TestBuildSourceArchiveAddsEntryPointAndBootstrap(t *testing.T) {
	ms := newMemStore()
	srcDir := t.TempDir()
	createFileTree(t, srcDir, []string{"helpers/util.py"})
	entry := filepath.Join(t.TempDir(), "inference.py")
	if err := os.WriteFile(entry, []byte("print('hi')"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	uri, err := BuildSourceArchive(context.Background(), ms, "my-bucket", "prefix/source/sourcedir.tar.gz", Input{
		EntryPoint: entry,
		SourceDir:  srcDir,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uri != "s3://my-bucket/prefix/source/sourcedir.tar.gz" {
		t.Fatalf("uri=%s", uri)
	}

	files := listUploadedFiles(t, ms, "my-bucket", "prefix/source/sourcedir.tar.gz")
	want := []string{"_bootstrap.py", "helpers/util.py", "inference.py"}
	if !reflect.DeepEqual(files, want) {
		t.Fatalf("files=%v, want %v", files, want)
	}
}

func TestBuildSourceArchiveRequiresEntryPoint(t *testing.T) {
	_, err := BuildSourceArchive(context.Background(), newMemStore(), "my-bucket", "key", Input{})
	if err == nil {
		t.Fatalf("expected error for missing entry point")
	}
}

func TestRepackageFromObjectStore(t *testing.T) {
	ms := newMemStore()
	modelDir := t.TempDir()
	createFileTree(t, modelDir, []string{"model.bin"})
	tarAndUpload(t, ms, modelDir, "my-bucket", "model.tar.gz")

	entryDir := t.TempDir()
	createFileTree(t, entryDir, []string{"inference.py"})

	err := Repackage(context.Background(), ms, "s3://my-bucket/model.tar.gz", "s3://my-bucket/repacked/model.tar.gz", Input{
		EntryPoint: filepath.Join(entryDir, "inference.py"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	files := listUploadedFiles(t, ms, "my-bucket", "repacked/model.tar.gz")
	want := []string{"code/_bootstrap.py", "code/inference.py", "model.bin"}
	if !reflect.DeepEqual(files, want) {
		t.Fatalf("files=%v, want %v", files, want)
	}
}

func TestRepackageFailsWhenCodePathIsAFile(t *testing.T) {
	ms := newMemStore()
	modelDir := t.TempDir()
	// A regular file named "code" makes the code directory unusable; the
	// stat on code/inference.py fails with something other than not-exist.
	createFileTree(t, modelDir, []string{"model.bin", "code"})
	tarAndUpload(t, ms, modelDir, "my-bucket", "model.tar.gz")

	entryDir := t.TempDir()
	createFileTree(t, entryDir, []string{"inference.py"})

	err := Repackage(context.Background(), ms, "s3://my-bucket/model.tar.gz", "s3://my-bucket/repacked/model.tar.gz", Input{
		EntryPoint: filepath.Join(entryDir, "inference.py"),
	})
	if err == nil {
		t.Fatalf("expected error when code path is a regular file")
	}
	if !strings.Contains(err.Error(), "stage entry point") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExtractArchiveRejectsTraversal(t *testing.T) {
	if _, err := securePath(t.TempDir(), "../escape"); err == nil {
		t.Fatalf("expected error for traversal entry")
	}
	if _, err := securePath(t.TempDir(), "/abs/path"); err == nil {
		t.Fatalf("expected error for absolute entry")
	}
	if _, err := securePath(t.TempDir(), "nested/ok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
