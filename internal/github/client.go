// Package github is a thin typed wrapper over the GitHub Git Data API.
//
// The remix pipeline only needs the low-level plumbing endpoints: repository
// metadata (for the default branch), recursive tree listing, ref read/write,
// blob read/create, tree create, and commit create. Each Client is bound to
// ONE bearer token — a remix involves two repositories with two different
// credentials, so the orchestrator holds two Clients.
//
// ERROR NORMALIZATION:
// Every non-2xx response from GitHub is converted to *UpstreamError carrying
// the HTTP status and GitHub's message. Nothing is retried at this layer —
// retries (if any) are an orchestration decision, not a transport one.
package github

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v68/github"

	"github.com/jardiel79162-commits/remixhub/internal/model"
)

// UpstreamError is any failure reported by the GitHub API.
//
// The message format matches what the history viewer displays:
//
//	GitHub API error 403: Resource not accessible by personal access token
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("GitHub API error %d: %s", e.StatusCode, e.Body)
}

// ErrTreeTruncated is returned by ListTree when GitHub's recursive listing
// hit its size limit. Copying a silently partial tree would destroy target
// files with no replacement, so the whole operation must fail instead.
var ErrTreeTruncated = errors.New("github: recursive tree listing was truncated — repository too large to remix")

// GitClient is the set of Git Data operations the remix orchestrator drives.
//
// The interface lives here (next to the real implementation) rather than in
// the service package because every method maps 1:1 onto a GitHub endpoint —
// it IS the transport contract. Tests substitute an in-memory fake.
//
// All repo parameters are normalized "owner/name" identifiers.
type GitClient interface {
	GetDefaultBranch(ctx context.Context, repo string) (string, error)
	ListTree(ctx context.Context, repo, branch string) ([]model.TreeEntry, error)
	GetRef(ctx context.Context, repo, branch string) (string, error)
	GetBlobContent(ctx context.Context, repo, sha string) (string, error)
	CreateBlob(ctx context.Context, repo, base64Content string) (string, error)
	CreateTree(ctx context.Context, repo string, entries []model.TreeEntry) (string, error)
	CreateCommit(ctx context.Context, repo, message, treeSHA string, parents []string) (string, error)
	UpdateRef(ctx context.Context, repo, branch, sha string) error
}

// ClientFactory builds a GitClient for a bearer token. The orchestrator calls
// it twice per job (source token, target token). Production wiring passes
// NewClient; tests pass a factory returning fakes.
type ClientFactory func(token string) GitClient

// Client implements GitClient against api.github.com.
type Client struct {
	gh *gh.Client
}

// compile-time check that *Client implements GitClient
var _ GitClient = (*Client)(nil)

// NewClient returns a Client authenticated with the given personal access
// token. The token is held by the underlying HTTP transport only — it is
// never logged or persisted.
func NewClient(token string) *Client {
	return &Client{
		gh: gh.NewClient(nil).WithAuthToken(token),
	}
}

// GetDefaultBranch reads the repository metadata and returns its default
// branch name (e.g. "main").
func (c *Client) GetDefaultBranch(ctx context.Context, repo string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}

	r, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return "", normalizeError(err)
	}

	return r.GetDefaultBranch(), nil
}

// ListTree recursively lists the branch's tree and returns blob entries only.
//
// GitHub caps recursive listings (100k entries / 7MB response); when the cap
// is hit it sets a "truncated" flag instead of failing. We surface that as
// ErrTreeTruncated — a partial listing must never be treated as the full
// file set.
func (c *Client) ListTree(ctx context.Context, repo, branch string) ([]model.TreeEntry, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	tree, _, err := c.gh.Git.GetTree(ctx, owner, name, branch, true)
	if err != nil {
		return nil, normalizeError(err)
	}

	if tree.GetTruncated() {
		return nil, ErrTreeTruncated
	}

	entries := make([]model.TreeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		// Directories ("tree") are implied by blob paths; submodules
		// ("commit") cannot be copied as file content. Blobs only.
		if e.GetType() != "blob" {
			continue
		}
		entries = append(entries, model.TreeEntry{
			Path: e.GetPath(),
			Mode: e.GetMode(),
			Type: "blob",
			SHA:  e.GetSHA(),
		})
	}

	return entries, nil
}

// GetRef returns the commit sha the branch currently points at.
func (c *Client) GetRef(ctx context.Context, repo, branch string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}

	ref, _, err := c.gh.Git.GetRef(ctx, owner, name, "heads/"+branch)
	if err != nil {
		return "", normalizeError(err)
	}

	return ref.GetObject().GetSHA(), nil
}

// GetBlobContent fetches a blob and returns its content exactly as the API
// delivers it: base64-encoded (with embedded newlines — GitHub wraps the
// encoding, and the blob-create endpoint accepts it back unchanged).
func (c *Client) GetBlobContent(ctx context.Context, repo, sha string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}

	blob, _, err := c.gh.Git.GetBlob(ctx, owner, name, sha)
	if err != nil {
		return "", normalizeError(err)
	}

	return blob.GetContent(), nil
}

// CreateBlob writes blob bytes into the repository's object database and
// returns the new content-addressed sha.
func (c *Client) CreateBlob(ctx context.Context, repo, base64Content string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}

	blob, _, err := c.gh.Git.CreateBlob(ctx, owner, name, &gh.Blob{
		Content:  gh.String(base64Content),
		Encoding: gh.String("base64"),
	})
	if err != nil {
		return "", normalizeError(err)
	}

	return blob.GetSHA(), nil
}

// CreateTree creates a tree object from the full explicit entry list.
//
// FOOTGUN — DELIBERATE FULL REPLACEMENT:
// No base tree is sent. A tree created without base_tree describes the
// ENTIRE repository content: any file not in entries ceases to exist in the
// commit that references this tree. That is the point of a remix — the
// target's previous content is wiped — but it makes this method destructive
// by construction. Do not "fix" this by adding a base tree.
func (c *Client) CreateTree(ctx context.Context, repo string, entries []model.TreeEntry) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}

	treeEntries := make([]*gh.TreeEntry, 0, len(entries))
	for _, e := range entries {
		treeEntries = append(treeEntries, &gh.TreeEntry{
			Path: gh.String(e.Path),
			Mode: gh.String(e.Mode),
			Type: gh.String(e.Type),
			SHA:  gh.String(e.SHA),
		})
	}

	// baseTree "" → base_tree omitted from the request body entirely.
	tree, _, err := c.gh.Git.CreateTree(ctx, owner, name, "", treeEntries)
	if err != nil {
		return "", normalizeError(err)
	}

	return tree.GetSHA(), nil
}

// CreateCommit creates a commit object pointing at treeSHA with the given
// parent commits.
func (c *Client) CreateCommit(ctx context.Context, repo, message, treeSHA string, parents []string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}

	parentCommits := make([]*gh.Commit, 0, len(parents))
	for _, p := range parents {
		parentCommits = append(parentCommits, &gh.Commit{SHA: gh.String(p)})
	}

	commit, _, err := c.gh.Git.CreateCommit(ctx, owner, name, &gh.Commit{
		Message: gh.String(message),
		Tree:    &gh.Tree{SHA: gh.String(treeSHA)},
		Parents: parentCommits,
	}, nil)
	if err != nil {
		return "", normalizeError(err)
	}

	return commit.GetSHA(), nil
}

// UpdateRef force-updates the branch pointer to sha.
//
// Force is always true: the new commit's parent was captured before the copy
// began, so by the time we get here the update may be non-fast-forward.
// Replacement is total, so that is accepted — a concurrent push to the
// target branch in the meantime is silently discarded (known TOCTOU window,
// see the orchestrator).
func (c *Client) UpdateRef(ctx context.Context, repo, branch, sha string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}

	_, _, err = c.gh.Git.UpdateRef(ctx, owner, name, &gh.Reference{
		Ref:    gh.String("refs/heads/" + branch),
		Object: &gh.GitObject{SHA: gh.String(sha)},
	}, true)
	if err != nil {
		return normalizeError(err)
	}

	return nil
}

// splitRepo splits a normalized "owner/name" id into its two parts.
func splitRepo(repo string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("github: invalid repository id %q (want owner/name)", repo)
	}
	return owner, name, nil
}

// normalizeError converts go-github errors into *UpstreamError.
//
// go-github returns *gh.ErrorResponse for any non-2xx status; transport
// failures (DNS, timeouts) come back as plain errors and are reported with
// status 0 — there was no HTTP status to carry.
func normalizeError(err error) error {
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) {
		status := 0
		if ghErr.Response != nil {
			status = ghErr.Response.StatusCode
		}
		return &UpstreamError{StatusCode: status, Body: ghErr.Message}
	}
	return &UpstreamError{StatusCode: 0, Body: err.Error()}
}
