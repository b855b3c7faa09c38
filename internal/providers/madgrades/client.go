package madgrades

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"madgrades-sync/internal/domain"
	"madgrades-sync/internal/httpx"
	"madgrades-sync/internal/logger"
	"madgrades-sync/internal/providers"
)

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	Retry   httpx.RetryPolicy
	Log     *logger.Logger

	PerPage int
	// ProgressEvery reports progress every N pages (and on the last one).
	ProgressEvery int
}

func New(baseURL, token string, timeout time.Duration, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP: &http.Client{
			Timeout: timeout, // per request
		},
		Retry:         httpx.DefaultRetryPolicy(),
		Log:           log,
		PerPage:       100,
		ProgressEvery: 10,
	}
}

var _ providers.CourseSource = (*Client)(nil)

func (c *Client) Name() string { return "madgrades" }

/* -------- API -------- */

// FetchAllCourses pages through /courses until currentPage reaches totalPages.
// limit > 0 stops once that many courses are collected.
func (c *Client) FetchAllCourses(ctx context.Context, limit int, progress func(providers.Progress)) ([]domain.SourceCourse, error) {
	perPage := c.PerPage
	if perPage <= 0 {
		perPage = 100
	}
	every := c.ProgressEvery
	if every <= 0 {
		every = 10
	}

	var all []domain.SourceCourse
	seen := map[string]bool{}
	for page := 1; ; page++ {
		var resp ListCoursesResponse
		if err := c.getJSON(ctx, "/courses", url.Values{
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(perPage)},
		}, &resp); err != nil {
			return nil, fmt.Errorf("madgrades: list courses page=%d: %w", page, err)
		}

		for _, rc := range resp.Results {
			sc := rc.toDomain()
			if _, err := uuid.Parse(sc.UUID); err != nil {
				c.Log.Warn("skipping course with malformed uuid", "uuid", rc.UUID, "name", rc.Name)
				continue
			}
			// the index can shift between pages and repeat a course
			if seen[sc.UUID] {
				c.Log.Warn("skipping repeated course", "uuid", sc.UUID, "page", page)
				continue
			}
			seen[sc.UUID] = true
			all = append(all, sc)
			if limit > 0 && len(all) >= limit {
				break
			}
		}

		done := resp.CurrentPage >= resp.TotalPages || len(resp.Results) == 0 || (limit > 0 && len(all) >= limit)
		if progress != nil && (page%every == 0 || done) {
			progress(providers.Progress{
				Page:       resp.CurrentPage,
				TotalPages: resp.TotalPages,
				Fetched:    len(all),
				TotalCount: resp.TotalCount,
			})
		}
		if done {
			return all, nil
		}
	}
}

func (c *Client) FetchCourseGrades(ctx context.Context, courseUUID string) (domain.GradePayload, error) {
	var resp GradesResponse
	if err := c.getJSON(ctx, "/courses/"+url.PathEscape(courseUUID)+"/grades", nil, &resp); err != nil {
		return domain.GradePayload{}, fmt.Errorf("madgrades: grades %s: %w", courseUUID, err)
	}
	return resp.toDomain(courseUUID), nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	target := u.String()

	buildReq := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Accept-Encoding", "br, gzip")
		if c.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.Token)
		}
		return req, nil
	}
	return httpx.DoJSON(ctx, c.HTTP, buildReq, out, c.Retry)
}
