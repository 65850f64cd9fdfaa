// Package repo performs the read/merge/write cycle against the
// version-controlled deck repository and resolves push conflicts by yielding
// to a side branch instead of merging content.
package repo

import (
	"context"
	"errors"
	"time"
)

// VersionToken is an opaque content fingerprint returned by reads and
// required as a write precondition. The engine only ever compares tokens for
// equality; their internal structure belongs to the transport.
type VersionToken string

// Zero is the absent token, used when writing a file that did not exist.
const Zero VersionToken = ""

// Commit describes one entry of the repository history.
type Commit struct {
	Message string
	ID      string
	Date    time.Time
}

// ErrNotFound is returned by ReadFile when the path does not exist on the
// requested branch.
var ErrNotFound = errors.New("file not found")

// ErrPreconditionFailed is returned by WriteFile when the file changed since
// the version token was read (a non-fast-forward write).
var ErrPreconditionFailed = errors.New("write precondition failed")

// WriteOptions qualifies a WriteFile call.
type WriteOptions struct {
	// Token is the fingerprint read before the edit; Zero means the file
	// is expected not to exist yet. Ignored when Branch is set: side
	// branches are created fresh and written without a precondition.
	Token VersionToken
	// Branch targets the write at a branch other than the default.
	Branch string
}

// Client is the transport to the version-controlled store. Implementations
// must make WriteFile fail with ErrPreconditionFailed on a stale token and
// ReadFile fail with ErrNotFound on a missing path.
type Client interface {
	ListDirectories(ctx context.Context) ([]string, error)
	ReadFile(ctx context.Context, path string) ([]byte, VersionToken, error)
	WriteFile(ctx context.Context, path string, content []byte, opts WriteOptions) (VersionToken, error)
	ListCommits(ctx context.Context, limit int) ([]Commit, error)
	CreateBranch(ctx context.Context, name string) error
	DeleteBranch(ctx context.Context, name string) error
}
