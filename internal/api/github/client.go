package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"

	"github.com/oshokin/dyst/internal/domain/packages"
	"github.com/oshokin/dyst/internal/logger"
	"github.com/oshokin/dyst/internal/version"
)

const (
	// releasesPerPage is the number of releases fetched in one round trip.
	releasesPerPage = 100

	// searchResultsLimit caps the number of repositories returned by Search.
	searchResultsLimit = 30
)

// Repository is a search hit.
type Repository struct {
	// FullName is the author/name identifier.
	FullName string
	// Description is the repository description, possibly empty.
	Description string
	// URL is the repository web page.
	URL string
	// Stars is the number of stargazers.
	Stars int
}

// Option configures a Client.
type Option func(o *options)

type options struct {
	token      string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// WithToken authenticates API calls with a personal access token.
func WithToken(token string) Option {
	return func(o *options) {
		o.token = token
	}
}

// WithBaseURL points the client at a different API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = baseURL
	}
}

// WithTimeout bounds every API call.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) {
		o.httpClient = httpClient
	}
}

// Client resolves releases and searches repositories through the GitHub REST API.
type Client struct {
	api *gh.Client
}

// NewClient creates a GitHub API client.
func NewClient(opts ...Option) (*Client, error) {
	o := new(options)
	for _, opt := range opts {
		opt(o)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: o.timeout}
	}

	api := gh.NewClient(httpClient)
	api.UserAgent = version.UserAgent()

	if o.token != "" {
		api = api.WithAuthToken(o.token)
	}

	if o.baseURL != "" {
		base, err := url.Parse(o.baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse GitHub API URL: %w", err)
		}

		if !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}

		api.BaseURL = base
	}

	return &Client{api: api}, nil
}

// Releases returns the newest releases of repo, newest first. Drafts are skipped.
func (c *Client) Releases(ctx context.Context, repo packages.Repository) ([]packages.Release, error) {
	logger.DebugKV(ctx, "Fetching releases", "repository", repo.String())

	list, _, err := c.api.Repositories.ListReleases(ctx, repo.Author, repo.Name, &gh.ListOptions{
		PerPage: releasesPerPage,
	})
	if err != nil {
		return nil, classify("list releases of "+repo.String(), err)
	}

	releases := make([]packages.Release, 0, len(list))

	for _, item := range list {
		if item.GetDraft() {
			continue
		}

		release := packages.Release{
			Tag:        item.GetTagName(),
			Prerelease: item.GetPrerelease(),
			Assets:     make([]packages.ReleaseAsset, 0, len(item.Assets)),
		}

		for _, asset := range item.Assets {
			release.Assets = append(release.Assets, packages.ReleaseAsset{
				Name: asset.GetName(),
				URL:  asset.GetBrowserDownloadURL(),
				Size: int64(asset.GetSize()),
			})
		}

		releases = append(releases, release)
	}

	return releases, nil
}

// Search looks up repositories matching query, best matches first.
func (c *Client) Search(ctx context.Context, query string) ([]Repository, error) {
	result, _, err := c.api.Search.Repositories(ctx, query, &gh.SearchOptions{
		ListOptions: gh.ListOptions{PerPage: searchResultsLimit},
	})
	if err != nil {
		return nil, classify("search repositories", err)
	}

	repositories := make([]Repository, 0, len(result.Repositories))
	for _, item := range result.Repositories {
		repositories = append(repositories, Repository{
			FullName:    item.GetFullName(),
			Description: item.GetDescription(),
			URL:         item.GetHTMLURL(),
			Stars:       item.GetStargazersCount(),
		})
	}

	return repositories, nil
}

// classify maps API failures onto the package error taxonomy.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%s: %w: API rate limit exceeded, resets at %s",
			op, packages.ErrTransfer, rateErr.Rate.Reset.Format(time.RFC3339))
	}

	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return fmt.Errorf("%s: %w: secondary rate limit exceeded, retry after %s",
			op, packages.ErrTransfer, abuseErr.GetRetryAfter())
	}

	var responseErr *gh.ErrorResponse
	if errors.As(err, &responseErr) && responseErr.Response != nil &&
		responseErr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w: repository could not be fetched", op, packages.ErrResolution)
	}

	return fmt.Errorf("%s: %w: %w", op, packages.ErrTransfer, err)
}
