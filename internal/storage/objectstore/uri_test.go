package objectstore

import "testing"

func TestParseURI(t *testing.T) {
	bucket, key, err := ParseURI("s3://my-bucket/models/model.tar.gz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bucket != "my-bucket" {
		t.Fatalf("bucket=%q, want my-bucket", bucket)
	}
	if key != "models/model.tar.gz" {
		t.Fatalf("key=%q, want models/model.tar.gz", key)
	}
}

func TestParseURIRejectsLocalPath(t *testing.T) {
	if _, _, err := ParseURI("/tmp/model.tar.gz"); err == nil {
		t.Fatalf("expected error for local path")
	}
}

func TestParseURIRejectsMissingKey(t *testing.T) {
	if _, _, err := ParseURI("s3://my-bucket"); err == nil {
		t.Fatalf("expected error for missing key")
	}
	if _, _, err := ParseURI("s3://my-bucket/"); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestURIJoinsSegments(t *testing.T) {
	got := URI("my-bucket", "prefix/", "/source", "sourcedir.tar.gz")
	want := "s3://my-bucket/prefix/source/sourcedir.tar.gz"
	if got != want {
		t.Fatalf("URI()=%q, want %q", got, want)
	}
}

func TestIsURI(t *testing.T) {
	if !IsURI("s3://bucket/key") {
		t.Fatalf("expected s3 uri to be recognized")
	}
	if IsURI("./local/dir") {
		t.Fatalf("expected local dir to be rejected")
	}
}
