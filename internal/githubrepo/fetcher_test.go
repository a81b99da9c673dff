package githubrepo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-github/v84/github"
)

// fakeRepos simulates the GitHub contents API over an in-memory tree.
type fakeRepos struct {
	repos map[string]*github.Repository
	// dirs maps path -> child paths; files maps path -> content.
	dirs  map[string][]string
	files map[string]string
	// errs maps operation keys ("get:name", "contents:path", "list") to
	// forced errors.
	errs map[string]error
}

func ghErr(status int) error {
	return &github.ErrorResponse{
		Response: &http.Response{StatusCode: status, Request: &http.Request{}},
	}
}

func (f *fakeRepos) Get(ctx context.Context, owner, repo string) (*github.Repository, *github.Response, error) {
	if err := f.errs["get:"+repo]; err != nil {
		return nil, nil, err
	}
	r, ok := f.repos[repo]
	if !ok {
		return nil, nil, ghErr(404)
	}
	return r, nil, nil
}

func (f *fakeRepos) GetContents(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentGetOptions) (*github.RepositoryContent, []*github.RepositoryContent, *github.Response, error) {
	if err := f.errs["contents:"+path]; err != nil {
		return nil, nil, nil, err
	}
	if children, ok := f.dirs[path]; ok {
		var entries []*github.RepositoryContent
		for _, child := range children {
			typ := "file"
			if _, isDir := f.dirs[child]; isDir {
				typ = "dir"
			}
			entries = append(entries, &github.RepositoryContent{
				Type: github.Ptr(typ),
				Path: github.Ptr(child),
			})
		}
		return nil, entries, nil, nil
	}
	if content, ok := f.files[path]; ok {
		return &github.RepositoryContent{
			Type:    github.Ptr("file"),
			Path:    github.Ptr(path),
			Size:    github.Ptr(len(content)),
			Content: github.Ptr(content),
		}, nil, nil, nil
	}
	return nil, nil, nil, ghErr(404)
}

func (f *fakeRepos) ListByUser(ctx context.Context, user string, opts *github.RepositoryListByUserOptions) ([]*github.Repository, *github.Response, error) {
	if err := f.errs["list"]; err != nil {
		return nil, nil, err
	}
	var out []*github.Repository
	for name := range f.repos {
		out = append(out, &github.Repository{Name: github.Ptr(name)})
	}
	return out, nil, nil
}

func newTestFetcher(repos *fakeRepos, limits Limits) *Fetcher {
	return &Fetcher{repos: repos, limits: limits}
}

func simpleRepo(name string) *github.Repository {
	return &github.Repository{
		Name:            github.Ptr(name),
		Description:     github.Ptr("test repository"),
		Language:        github.Ptr("Go"),
		StargazersCount: github.Ptr(42),
		ForksCount:      github.Ptr(7),
		HTMLURL:         github.Ptr("https://github.com/octocat/" + name),
	}
}

func TestFetchWalksTree(t *testing.T) {
	fake := &fakeRepos{
		repos: map[string]*github.Repository{"demo": simpleRepo("demo")},
		dirs: map[string][]string{
			"":    {"main.go", "pkg"},
			"pkg": {"pkg/util.go"},
		},
		files: map[string]string{
			"main.go":     "package main\n",
			"pkg/util.go": "package pkg\n",
		},
	}
	f := newTestFetcher(fake, DefaultLimits())

	repo, err := f.Fetch(context.Background(), "octocat", "demo")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if repo.Name != "demo" || repo.Language != "Go" || repo.Stars != 42 {
		t.Errorf("metadata mismatch: %+v", repo)
	}
	if repo.ProcessedFiles != 2 {
		t.Errorf("ProcessedFiles = %d, want 2", repo.ProcessedFiles)
	}

	paths := make(map[string]string)
	for _, file := range repo.Files {
		paths[file.Path] = file.Content
	}
	if paths["main.go"] != "package main\n" {
		t.Errorf("main.go content = %q", paths["main.go"])
	}
	if paths["pkg/util.go"] != "package pkg\n" {
		t.Errorf("pkg/util.go content = %q", paths["pkg/util.go"])
	}
}

func TestFetchTruncatesOversizedFiles(t *testing.T) {
	big := strings.Repeat("x", 500)
	fake := &fakeRepos{
		repos: map[string]*github.Repository{"demo": simpleRepo("demo")},
		dirs:  map[string][]string{"": {"big.txt"}},
		files: map[string]string{"big.txt": big},
	}
	f := newTestFetcher(fake, Limits{MaxFiles: 50, MaxFileBytes: 100, MaxRepos: 10})

	repo, err := f.Fetch(context.Background(), "octocat", "demo")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(repo.Files) != 1 {
		t.Fatalf("Files = %d, want 1", len(repo.Files))
	}

	file := repo.Files[0]
	if !file.Truncated {
		t.Error("expected Truncated=true for oversized file")
	}
	if len(file.Content) > 100 {
		t.Errorf("content length = %d, must not exceed limit 100", len(file.Content))
	}
	if file.Size != 500 {
		t.Errorf("Size = %d, want original 500", file.Size)
	}
}

func TestFetchReplacesBinaryContent(t *testing.T) {
	fake := &fakeRepos{
		repos: map[string]*github.Repository{"demo": simpleRepo("demo")},
		dirs:  map[string][]string{"": {"blob.bin"}},
		files: map[string]string{"blob.bin": "PK\x00\x03binarydata"},
	}
	f := newTestFetcher(fake, DefaultLimits())

	repo, err := f.Fetch(context.Background(), "octocat", "demo")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if repo.Files[0].Content != BinarySentinel {
		t.Errorf("binary content = %q, want sentinel", repo.Files[0].Content)
	}
}

func TestFetchStopsAtFileLimit(t *testing.T) {
	files := make(map[string]string)
	var children []string
	for i := 0; i < 10; i++ {
		path := fmt.Sprintf("file%d.go", i)
		children = append(children, path)
		files[path] = "package x\n"
	}
	fake := &fakeRepos{
		repos: map[string]*github.Repository{"demo": simpleRepo("demo")},
		dirs:  map[string][]string{"": children},
		files: files,
	}
	f := newTestFetcher(fake, Limits{MaxFiles: 3, MaxFileBytes: 100_000, MaxRepos: 10})

	repo, err := f.Fetch(context.Background(), "octocat", "demo")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if repo.ProcessedFiles != 3 {
		t.Errorf("ProcessedFiles = %d, want 3", repo.ProcessedFiles)
	}
}

func TestFetchErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{name: "missing repo", status: 404, wantErr: ErrRepoNotFound},
		{name: "bad token", status: 401, wantErr: ErrAccessDenied},
		{name: "forbidden", status: 403, wantErr: ErrAccessDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeRepos{
				repos: map[string]*github.Repository{},
				errs:  map[string]error{"get:demo": ghErr(tt.status)},
			}
			f := newTestFetcher(fake, DefaultLimits())

			_, err := f.Fetch(context.Background(), "octocat", "demo")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFetchTransportErrorIsRetryable(t *testing.T) {
	fake := &fakeRepos{
		errs: map[string]error{"get:demo": errors.New("connection reset by peer")},
	}
	f := newTestFetcher(fake, DefaultLimits())

	_, err := f.Fetch(context.Background(), "octocat", "demo")
	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if !ferr.IsRetryable() {
		t.Error("transport errors must be retryable")
	}
}

func TestListReposCapsResults(t *testing.T) {
	repos := make(map[string]*github.Repository)
	for i := 0; i < 15; i++ {
		name := fmt.Sprintf("repo%02d", i)
		repos[name] = simpleRepo(name)
	}
	fake := &fakeRepos{repos: repos}
	f := newTestFetcher(fake, Limits{MaxFiles: 50, MaxFileBytes: 100_000, MaxRepos: 10})

	names, err := f.ListRepos(context.Background(), "octocat")
	if err != nil {
		t.Fatalf("ListRepos failed: %v", err)
	}
	if len(names) != 10 {
		t.Errorf("len(names) = %d, want 10", len(names))
	}
}
