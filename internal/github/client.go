package github

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ahn-nath/confevo/internal/errors"
	"github.com/ahn-nath/confevo/internal/models"
	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// PerPage is the GitHub maximum page size
const PerPage = 100

// Options configures a Client
type Options struct {
	Token      string
	RateLimit  int    // Requests per second
	MaxWorkers int    // Concurrent commit detail requests
	BaseURL    string // API root, e.g. https://ghe.example.com/api/v3/
	RetryDelay time.Duration
}

// CommitCache stores commit file lists by SHA
type CommitCache interface {
	Get(sha string) ([]models.ChangedFile, bool, error)
	Put(sha string, files []models.ChangedFile) error
}

// Client wraps the GitHub API client with rate limiting and concurrency
type Client struct {
	client      *github.Client
	rateLimiter *rate.Limiter
	maxWorkers  int
	retryDelay  time.Duration
	cache       CommitCache
	logger      *logrus.Logger
}

// NewClient creates a new GitHub client with rate limiting
func NewClient(opts Options, logger *logrus.Logger) (*Client, error) {
	client := github.NewClient(nil)
	if opts.Token != "" {
		client = client.WithAuthToken(opts.Token)
	}

	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, errors.ConfigErrorf("invalid GitHub API URL %q: %v", opts.BaseURL, err)
		}
		client.BaseURL = u
	}

	if opts.RateLimit <= 0 {
		opts.RateLimit = 10
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 8
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = 2 * time.Second
	}

	return &Client{
		client:      client,
		rateLimiter: rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		maxWorkers:  opts.MaxWorkers,
		retryDelay:  opts.RetryDelay,
		logger:      logger,
	}, nil
}

// WithCache makes GetCommitFiles consult cache before the API
func (c *Client) WithCache(cache CommitCache) *Client {
	c.cache = cache
	return c
}

// ListCommits returns every commit touching path since the given time,
// following pagination, oldest first
func (c *Client) ListCommits(ctx context.Context, owner, name, path string, since time.Time) ([]models.Commit, error) {
	opts := &github.CommitsListOptions{
		Path:  path,
		Since: since,
		ListOptions: github.ListOptions{
			PerPage: PerPage,
		},
	}

	var allCommits []models.Commit
	pages := 0

	for {
		var commits []*github.RepositoryCommit
		var resp *github.Response

		err := c.do(ctx, "list commits", func() (*github.Response, error) {
			var err error
			commits, resp, err = c.client.Repositories.ListCommits(ctx, owner, name, opts)
			return resp, err
		})
		if err != nil {
			return nil, err.WithContext("owner", owner).WithContext("repo", name).WithContext("page", opts.Page)
		}
		pages++

		for _, commit := range commits {
			allCommits = append(allCommits, models.Commit{
				SHA:        commit.GetSHA(),
				AuthorDate: commit.GetCommit().GetAuthor().GetDate().Time.UTC(),
				Message:    firstLine(commit.GetCommit().GetMessage()),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	// The API lists newest first; author dates can also be out of order after rebases
	sort.SliceStable(allCommits, func(i, j int) bool {
		return allCommits[i].AuthorDate.Before(allCommits[j].AuthorDate)
	})

	c.logger.WithFields(logrus.Fields{
		"owner":   owner,
		"repo":    name,
		"path":    path,
		"since":   since.Format(time.RFC3339),
		"pages":   pages,
		"commits": len(allCommits),
	}).Debug("Listed commits")

	return allCommits, nil
}

// GetCommitFiles returns every file changed by sha with its patch text
func (c *Client) GetCommitFiles(ctx context.Context, owner, name, sha string) ([]models.ChangedFile, error) {
	if c.cache != nil {
		files, found, err := c.cache.Get(sha)
		if err != nil {
			c.logger.WithError(err).WithField("sha", sha).Warn("Commit cache read failed")
		} else if found {
			return files, nil
		}
	}

	opts := &github.ListOptions{PerPage: PerPage}
	files := []models.ChangedFile{}

	for {
		var commit *github.RepositoryCommit
		var resp *github.Response

		err := c.do(ctx, "get commit", func() (*github.Response, error) {
			var err error
			commit, resp, err = c.client.Repositories.GetCommit(ctx, owner, name, sha, opts)
			return resp, err
		})
		if err != nil {
			return nil, err.WithContext("sha", sha)
		}

		for _, file := range commit.Files {
			files = append(files, models.ChangedFile{
				Name:  file.GetFilename(),
				Patch: file.GetPatch(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if c.cache != nil {
		if err := c.cache.Put(sha, files); err != nil {
			c.logger.WithError(err).WithField("sha", sha).Warn("Commit cache write failed")
		}
	}

	return files, nil
}

// GetFileContent returns the base64 encoded content of path at ref
func (c *Client) GetFileContent(ctx context.Context, owner, name, path, ref string) (string, error) {
	var content *github.RepositoryContent

	err := c.do(ctx, "get contents", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		content, _, resp, err = c.client.Repositories.GetContents(ctx, owner, name, path,
			&github.RepositoryContentGetOptions{Ref: ref})
		return resp, err
	})
	if err != nil {
		return "", err.WithContext("path", path).WithContext("ref", ref)
	}

	if content == nil || content.Content == nil {
		return "", errors.FetchError(fmt.Errorf("%s is not a file", path), http.StatusOK, "get contents")
	}
	if enc := content.GetEncoding(); enc != "" && enc != "base64" {
		return "", errors.FetchError(fmt.Errorf("unsupported encoding %q", enc), http.StatusOK, "get contents")
	}

	return *content.Content, nil
}

// do runs one API call under the rate limiter. A rate-limit or server error
// is retried once; any other failure, or a second failure, is returned as a
// fetch error carrying the HTTP status.
func (c *Client) do(ctx context.Context, op string, call func() (*github.Response, error)) *errors.Error {
	for attempt := 0; ; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return errors.FetchError(err, 0, op)
		}

		resp, err := call()
		if err == nil {
			return nil
		}

		status := statusOf(resp, err)
		if attempt == 0 && retryable(err, status) {
			c.logger.WithFields(logrus.Fields{
				"op":     op,
				"status": status,
			}).WithError(err).Warn("GitHub request failed, retrying once")

			select {
			case <-ctx.Done():
				return errors.FetchError(ctx.Err(), status, op)
			case <-time.After(c.retryDelay):
			}
			continue
		}

		return errors.FetchError(err, status, op)
	}
}

func statusOf(resp *github.Response, err error) int {
	if resp != nil && resp.Response != nil {
		return resp.StatusCode
	}
	var errResp *github.ErrorResponse
	if stderrors.As(err, &errResp) && errResp.Response != nil {
		return errResp.Response.StatusCode
	}
	return 0
}

func retryable(err error, status int) bool {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if stderrors.As(err, &rateErr) || stderrors.As(err, &abuseErr) {
		return true
	}
	return status == http.StatusTooManyRequests || status >= 500
}

func firstLine(message string) string {
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		return message[:i]
	}
	return message
}
