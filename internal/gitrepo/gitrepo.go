// Package gitrepo implements the repository transport on top of a local
// go-git clone. Version tokens are blob hashes: a write is preconditioned on
// the document's blob being unchanged at the remote tip, and a rejected push
// surfaces as a precondition failure.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/conorfennell/gitdeck/internal/repo"
)

// Options configure the clone this client works against.
type Options struct {
	URL    string
	Path   string // local clone directory
	Branch string // primary line of history
	Token  string // access token; empty for anonymous remotes
}

// Client is a repo.Client backed by a go-git clone with a single remote.
type Client struct {
	mu     sync.Mutex
	repo   *git.Repository
	path   string
	branch string
	auth   transport.AuthMethod
	log    *slog.Logger
}

var _ repo.Client = (*Client)(nil)

// Open clones the repository if it doesn't exist at the given path, or opens
// the existing clone if it does.
func Open(ctx context.Context, opts Options, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	var auth transport.AuthMethod
	if opts.Token != "" {
		auth = &githttp.BasicAuth{Username: "git", Password: opts.Token}
	}

	var r *git.Repository
	_, err := os.Stat(opts.Path)
	switch {
	case os.IsNotExist(err):
		log.Info("cloning repository", "url", opts.URL, "path", opts.Path)
		r, err = git.PlainCloneContext(ctx, opts.Path, false, &git.CloneOptions{
			URL:           opts.URL,
			Auth:          auth,
			ReferenceName: plumbing.NewBranchReferenceName(opts.Branch),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to clone repo %s: %w", opts.URL, err)
		}
	case err == nil:
		r, err = git.PlainOpen(opts.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open existing repo at %s: %w", opts.Path, err)
		}
	default:
		return nil, fmt.Errorf("error checking path %s: %w", opts.Path, err)
	}

	return &Client{repo: r, path: opts.Path, branch: opts.Branch, auth: auth, log: log}, nil
}

// fetch refreshes all remote-tracking refs. Already-up-to-date is not an
// error.
func (c *Client) fetch(ctx context.Context) error {
	err := c.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		Auth:       c.auth,
		Force:      true,
		RefSpecs:   []gitconfig.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch origin: %w", err)
	}
	return nil
}

// tip resolves the remote tip commit of the primary branch.
func (c *Client) tip() (*object.Commit, error) {
	ref, err := c.repo.Reference(plumbing.NewRemoteReferenceName("origin", c.branch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve origin/%s: %w", c.branch, err)
	}
	commit, err := c.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", ref.Hash(), err)
	}
	return commit, nil
}

// ListDirectories returns the top-level directory names at the remote tip.
func (c *Client) ListDirectories(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fetch(ctx); err != nil {
		return nil, err
	}
	commit, err := c.tip()
	if err != nil {
		return nil, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}
	var dirs []string
	for _, e := range tree.Entries {
		if e.Mode == filemode.Dir {
			dirs = append(dirs, e.Name)
		}
	}
	return dirs, nil
}

// ReadFile returns a file's content at the remote tip together with its blob
// hash as the version token.
func (c *Client) ReadFile(ctx context.Context, path string) ([]byte, repo.VersionToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fetch(ctx); err != nil {
		return nil, repo.Zero, err
	}
	commit, err := c.tip()
	if err != nil {
		return nil, repo.Zero, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, repo.Zero, fmt.Errorf("load tree: %w", err)
	}
	file, err := tree.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, repo.Zero, fmt.Errorf("%s: %w", path, repo.ErrNotFound)
		}
		return nil, repo.Zero, fmt.Errorf("read %s: %w", path, err)
	}
	content, err := file.Contents()
	if err != nil {
		return nil, repo.Zero, fmt.Errorf("read %s: %w", path, err)
	}
	return []byte(content), repo.VersionToken(file.Hash.String()), nil
}

// WriteFile commits the file on top of the remote tip and pushes. Writes to
// the primary branch carry the precondition that the document's blob still
// matches the given token; side-branch writes do not.
func (c *Client) WriteFile(ctx context.Context, path string, content []byte, opts repo.WriteOptions) (repo.VersionToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fetch(ctx); err != nil {
		return repo.Zero, err
	}
	commit, err := c.tip()
	if err != nil {
		return repo.Zero, err
	}

	target := opts.Branch
	if target == "" {
		target = c.branch
		current, err := blobToken(commit, path)
		if err != nil {
			return repo.Zero, err
		}
		if current != opts.Token {
			return repo.Zero, fmt.Errorf("%s changed upstream: %w", path, repo.ErrPreconditionFailed)
		}
	}

	if err := c.checkoutAt(target, commit.Hash); err != nil {
		return repo.Zero, err
	}

	abs := filepath.Join(c.path, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return repo.Zero, fmt.Errorf("create %s: %w", filepath.Dir(abs), err)
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		return repo.Zero, fmt.Errorf("write %s: %w", abs, err)
	}

	w, err := c.repo.Worktree()
	if err != nil {
		return repo.Zero, fmt.Errorf("worktree: %w", err)
	}
	if _, err := w.Add(path); err != nil {
		return repo.Zero, fmt.Errorf("stage %s: %w", path, err)
	}
	newHash, err := w.Commit("update "+path, &git.CommitOptions{
		Author: &object.Signature{Name: "gitdeck", Email: "gitdeck@localhost", When: time.Now()},
	})
	if err != nil {
		return repo.Zero, fmt.Errorf("commit %s: %w", path, err)
	}

	if err := c.push(ctx, target); err != nil {
		return repo.Zero, err
	}

	newCommit, err := c.repo.CommitObject(newHash)
	if err != nil {
		return repo.Zero, fmt.Errorf("load commit %s: %w", newHash, err)
	}
	token, err := blobToken(newCommit, path)
	if err != nil {
		return repo.Zero, err
	}
	return token, nil
}

// ListCommits returns up to limit commits from the remote tip, newest first.
func (c *Client) ListCommits(ctx context.Context, limit int) ([]repo.Commit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fetch(ctx); err != nil {
		return nil, err
	}
	commit, err := c.tip()
	if err != nil {
		return nil, err
	}
	iter, err := c.repo.Log(&git.LogOptions{From: commit.Hash})
	if err != nil {
		return nil, fmt.Errorf("log: %w", err)
	}
	defer iter.Close()

	var commits []repo.Commit
	for len(commits) < limit {
		cm, err := iter.Next()
		if err != nil {
			break
		}
		commits = append(commits, repo.Commit{
			Message: strings.TrimSpace(cm.Message),
			ID:      cm.Hash.String(),
			Date:    cm.Author.When,
		})
	}
	return commits, nil
}

// CreateBranch creates a remote branch at the current tip of the primary
// branch.
func (c *Client) CreateBranch(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fetch(ctx); err != nil {
		return err
	}
	commit, err := c.tip()
	if err != nil {
		return err
	}
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), commit.Hash)
	if err := c.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("create branch %s: %w", name, err)
	}
	return c.push(ctx, name)
}

// DeleteBranch removes a branch from the remote and the local clone.
func (c *Client) DeleteBranch(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		Auth:       c.auth,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(":refs/heads/" + name)},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("delete remote branch %s: %w", name, err)
	}
	if err := c.repo.Storer.RemoveReference(plumbing.NewBranchReferenceName(name)); err != nil {
		return fmt.Errorf("delete local branch %s: %w", name, err)
	}
	return nil
}

// checkoutAt puts the worktree on the named local branch reset to the given
// commit, creating the branch if needed.
func (c *Client) checkoutAt(branch string, at plumbing.Hash) error {
	w, err := c.repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	refName := plumbing.NewBranchReferenceName(branch)
	if _, err := c.repo.Reference(refName, false); err != nil {
		return wrapCheckout(branch, w.Checkout(&git.CheckoutOptions{
			Branch: refName,
			Hash:   at,
			Create: true,
			Force:  true,
		}))
	}
	if err := w.Checkout(&git.CheckoutOptions{Branch: refName, Force: true}); err != nil {
		return wrapCheckout(branch, err)
	}
	return w.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: at})
}

func wrapCheckout(branch string, err error) error {
	if err != nil {
		return fmt.Errorf("checkout %s: %w", branch, err)
	}
	return nil
}

// push sends the local branch to origin. A rejected non-fast-forward push is
// reported as a precondition failure, matching the blob-token contract.
func (c *Client) push(ctx context.Context, branch string) error {
	spec := gitconfig.RefSpec("refs/heads/" + branch + ":refs/heads/" + branch)
	err := c.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		Auth:       c.auth,
		RefSpecs:   []gitconfig.RefSpec{spec},
	})
	if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if strings.Contains(err.Error(), "non-fast-forward") {
		return fmt.Errorf("push %s rejected: %w", branch, repo.ErrPreconditionFailed)
	}
	return fmt.Errorf("push %s: %w", branch, err)
}

// blobToken returns the version token of a path at a commit, or Zero when
// the file does not exist there.
func blobToken(commit *object.Commit, path string) (repo.VersionToken, error) {
	tree, err := commit.Tree()
	if err != nil {
		return repo.Zero, fmt.Errorf("load tree: %w", err)
	}
	file, err := tree.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return repo.Zero, nil
		}
		return repo.Zero, fmt.Errorf("stat %s: %w", path, err)
	}
	return repo.VersionToken(file.Hash.String()), nil
}
