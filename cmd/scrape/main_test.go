package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCollectArgs(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		urlsOnly   bool
		wantURLs   []string
		wantOutput string
		wantErr    bool
	}{
		{
			name:       "single listing and output",
			args:       []string{"http://example.test/product-category/motors/", "out.csv"},
			wantURLs:   []string{"http://example.test/product-category/motors/"},
			wantOutput: "out.csv",
		},
		{
			name: "multiple listings and output",
			args: []string{
				"http://example.test/product-category/motors/",
				"http://example.test/product-category/batteries/",
				"out.csv",
			},
			wantURLs: []string{
				"http://example.test/product-category/motors/",
				"http://example.test/product-category/batteries/",
			},
			wantOutput: "out.csv",
		},
		{
			name:    "missing output path",
			args:    []string{"http://example.test/product-category/motors/"},
			wantErr: true,
		},
		{
			name:    "no arguments",
			args:    nil,
			wantErr: true,
		},
		{
			name:     "urls-only without output path",
			args:     []string{"http://example.test/product-category/motors/"},
			urlsOnly: true,
			wantURLs: []string{"http://example.test/product-category/motors/"},
		},
		{
			name:     "urls-only requires a listing",
			args:     nil,
			urlsOnly: true,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			urls, output, err := collectArgs(tt.args, "", tt.urlsOnly)
			if (err != nil) != tt.wantErr {
				t.Fatalf("collectArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if output != tt.wantOutput {
				t.Errorf("output = %q, want %q", output, tt.wantOutput)
			}
			if len(urls) != len(tt.wantURLs) {
				t.Fatalf("urls = %v, want %v", urls, tt.wantURLs)
			}
			for i := range tt.wantURLs {
				if urls[i] != tt.wantURLs[i] {
					t.Errorf("urls[%d] = %q, want %q", i, urls[i], tt.wantURLs[i])
				}
			}
		})
	}
}

func TestCollectArgsURLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.txt")
	content := "# categories\nhttp://example.test/product-category/motors/\n\nhttp://example.test/product-category/batteries/\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write url file: %v", err)
	}

	urls, output, err := collectArgs([]string{"out.csv"}, path, false)
	if err != nil {
		t.Fatalf("collectArgs: %v", err)
	}
	if output != "out.csv" {
		t.Errorf("output = %q", output)
	}
	if len(urls) != 2 {
		t.Fatalf("urls = %v, want 2 (comments and blanks skipped)", urls)
	}

	// -urls-only with a URL file takes no positional arguments.
	if _, _, err := collectArgs([]string{"out.csv"}, path, true); err == nil {
		t.Error("expected error for -urls-only with an output path")
	}
	urls, output, err = collectArgs(nil, path, true)
	if err != nil {
		t.Fatalf("collectArgs urls-only: %v", err)
	}
	if output != "" || len(urls) != 2 {
		t.Errorf("urls = %v, output = %q", urls, output)
	}
}

func TestFilterExisting(t *testing.T) {
	urls := []string{
		"http://example.test/product/a",
		"http://example.test/product/b",
		"http://example.test/product/c",
	}
	existing := []string{
		"http://example.test/product/b/", // trailing slash must not defeat the match
	}

	got := filterExisting(urls, existing)
	want := []string{
		"http://example.test/product/a",
		"http://example.test/product/c",
	}
	if len(got) != len(want) {
		t.Fatalf("filtered = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("filtered[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
