// Package githubrepo fetches repository metadata and file contents from
// the GitHub REST API.
//
// The fetcher walks a repository's tree breadth-first, collecting file
// contents up to configured count and size limits. Binary files are
// replaced by a sentinel and oversized files are truncated, so downstream
// prompts stay within bounds.
package githubrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v84/github"
)

// BinarySentinel replaces the content of files that look binary.
const BinarySentinel = "[binary content omitted]"

// Sentinel errors for repository access failures. Both are permanent:
// retrying a missing repository or a bad token does not help.
var (
	// ErrRepoNotFound indicates the repository does not exist or is not
	// visible to the token.
	ErrRepoNotFound = errors.New("repository not found")

	// ErrAccessDenied indicates the token lacks permission for the
	// repository.
	ErrAccessDenied = errors.New("repository access denied")
)

// FetchError wraps a transport-level failure talking to the GitHub API.
// These are retryable.
type FetchError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("github %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error { return e.Err }

// IsRetryable reports that transport failures are transient.
func (e *FetchError) IsRetryable() bool { return true }

// FileRecord is a single fetched file. Immutable after creation.
type FileRecord struct {
	// Path is the file path within the repository.
	Path string `json:"path"`

	// Content is the file content, possibly truncated or replaced by
	// BinarySentinel. Never exceeds the configured byte limit.
	Content string `json:"content"`

	// Size is the original file size in bytes as reported by the API.
	Size int `json:"size"`

	// Truncated reports whether Content was cut at the byte limit.
	Truncated bool `json:"truncated"`
}

// Repository is the fetched metadata and contents of one repository.
type Repository struct {
	Name           string       `json:"name"`
	Description    string       `json:"description"`
	Language       string       `json:"language"`
	Stars          int          `json:"stars"`
	Forks          int          `json:"forks"`
	URL            string       `json:"url"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	Files          []FileRecord `json:"files"`
	ProcessedFiles int          `json:"processed_files"`
}

// Limits bounds how much of a repository the fetcher pulls.
type Limits struct {
	// MaxFiles is the maximum number of files fetched per repository.
	MaxFiles int

	// MaxFileBytes is the per-file content byte limit. Larger files are
	// truncated at this limit.
	MaxFileBytes int

	// MaxRepos caps how many repositories a list-all resolves to.
	MaxRepos int
}

// DefaultLimits mirror the fetch bounds the pipeline was tuned for.
func DefaultLimits() Limits {
	return Limits{MaxFiles: 50, MaxFileBytes: 100_000, MaxRepos: 10}
}

// reposAPI is the slice of the go-github client the fetcher needs.
// Tests substitute a stub for it.
type reposAPI interface {
	Get(ctx context.Context, owner, repo string) (*github.Repository, *github.Response, error)
	GetContents(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentGetOptions) (*github.RepositoryContent, []*github.RepositoryContent, *github.Response, error)
	ListByUser(ctx context.Context, user string, opts *github.RepositoryListByUserOptions) ([]*github.Repository, *github.Response, error)
}

// Fetcher retrieves repositories through the GitHub REST API.
type Fetcher struct {
	repos  reposAPI
	limits Limits
}

// NewFetcher creates a Fetcher authenticated with the given token.
func NewFetcher(token string, limits Limits) *Fetcher {
	client := github.NewClient(nil).WithAuthToken(token)
	return &Fetcher{repos: client.Repositories, limits: limits}
}

// ListRepos returns up to limits.MaxRepos repository names for the user,
// most recently updated first.
func (f *Fetcher) ListRepos(ctx context.Context, owner string) ([]string, error) {
	opts := &github.RepositoryListByUserOptions{
		Sort:        "updated",
		ListOptions: github.ListOptions{PerPage: f.limits.MaxRepos},
	}
	repos, _, err := f.repos.ListByUser(ctx, owner, opts)
	if err != nil {
		return nil, f.mapError("list repositories", err)
	}

	names := make([]string, 0, f.limits.MaxRepos)
	for _, r := range repos {
		if len(names) >= f.limits.MaxRepos {
			break
		}
		names = append(names, r.GetName())
	}
	return names, nil
}

// Fetch retrieves the repository metadata and walks its contents
// breadth-first up to the configured limits.
func (f *Fetcher) Fetch(ctx context.Context, owner, name string) (Repository, error) {
	meta, _, err := f.repos.Get(ctx, owner, name)
	if err != nil {
		return Repository{}, f.mapError("get repository", err)
	}

	repo := Repository{
		Name:        meta.GetName(),
		Description: meta.GetDescription(),
		Language:    meta.GetLanguage(),
		Stars:       meta.GetStargazersCount(),
		Forks:       meta.GetForksCount(),
		URL:         meta.GetHTMLURL(),
		CreatedAt:   meta.GetCreatedAt().Time,
		UpdatedAt:   meta.GetUpdatedAt().Time,
	}

	queue := []string{""}
	for len(queue) > 0 && repo.ProcessedFiles < f.limits.MaxFiles {
		if err := ctx.Err(); err != nil {
			return Repository{}, err
		}

		path := queue[0]
		queue = queue[1:]

		file, dir, _, err := f.repos.GetContents(ctx, owner, name, path, nil)
		if err != nil {
			// Skip unreadable directories and files, matching the
			// best-effort walk of the rest of the tree.
			if path == "" {
				return Repository{}, f.mapError("get contents", err)
			}
			continue
		}

		if dir != nil {
			// Directory listing: enqueue every entry, files and
			// subdirectories alike, and fetch them in order.
			for _, entry := range dir {
				queue = append(queue, entry.GetPath())
			}
			continue
		}

		if file == nil {
			continue
		}

		repo.Files = append(repo.Files, f.fileRecord(file))
		repo.ProcessedFiles++
	}

	return repo, nil
}

// fileRecord converts an API content entry to a bounded FileRecord.
func (f *Fetcher) fileRecord(file *github.RepositoryContent) FileRecord {
	rec := FileRecord{
		Path: file.GetPath(),
		Size: file.GetSize(),
	}

	content, err := file.GetContent()
	if err != nil {
		rec.Content = fmt.Sprintf("[error reading file: %v]", err)
		return rec
	}

	if isBinary(content) {
		rec.Content = BinarySentinel
		return rec
	}

	if len(content) > f.limits.MaxFileBytes {
		rec.Content = content[:f.limits.MaxFileBytes]
		rec.Truncated = true
		return rec
	}

	rec.Content = content
	return rec
}

// isBinary applies a NUL-byte heuristic to the first kilobyte.
func isBinary(content string) bool {
	probe := content
	if len(probe) > 1024 {
		probe = probe[:1024]
	}
	return strings.ContainsRune(probe, '\x00')
}

// mapError classifies GitHub API errors. 404 means the repository is
// missing, 401/403 mean the token cannot see it; anything else is a
// retryable transport failure.
func (f *Fetcher) mapError(op string, err error) error {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case 404:
			return fmt.Errorf("%s: %w", op, ErrRepoNotFound)
		case 401, 403:
			return fmt.Errorf("%s: %w", op, ErrAccessDenied)
		}
	}
	return &FetchError{Op: op, Err: err}
}
