package github

import (
	"context"
	"time"

	"github.com/ahn-nath/confevo/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// FetchCommits lists every commit touching path since the given time and
// attaches the allow-listed files of each. Commits whose files are all
// filtered out stay in the result with no files. The first failed request
// cancels the remaining ones and is returned.
func (c *Client) FetchCommits(ctx context.Context, owner, name, path string, since time.Time, allow *AllowList) ([]models.Commit, error) {
	start := time.Now()

	commits, err := c.ListCommits(ctx, owner, name, path, since)
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		c.logger.WithField("since", since.Format(time.RFC3339)).Info("No new commits")
		return commits, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxWorkers)

	for i := range commits {
		i := i
		g.Go(func() error {
			files, err := c.GetCommitFiles(gctx, owner, name, commits[i].SHA)
			if err != nil {
				return err
			}
			// Each goroutine owns exactly one slot
			commits[i].Files = allow.Filter(files)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	tracked := 0
	for _, commit := range commits {
		tracked += len(commit.Files)
	}

	c.logger.WithFields(logrus.Fields{
		"commits":  len(commits),
		"files":    tracked,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("Fetched commit details")

	return commits, nil
}
