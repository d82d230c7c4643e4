// Package workos is a small client for the identity provider's organization
// and membership listing endpoints. Listings are cursor-paginated; every
// helper here follows the cursor to the end and returns either the full
// listing or an error, never a partial one.
package workos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/agentcanvas/internal/domain/models"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// PageSize is the number of items requested per page.
const PageSize = 100

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.workos.com"

// ErrTooManyPages is returned when a listing does not terminate within
// Options.MaxPages pages.
var ErrTooManyPages = errors.New("workos: listing exceeded page limit")

// ErrCursorStuck is returned when the provider hands back the cursor that
// was just requested. The listing is incomplete and must not be used.
var ErrCursorStuck = errors.New("workos: listing cursor did not advance")

// ErrNoAPIKey is returned by New when no API key is configured.
var ErrNoAPIKey = errors.New("workos: api key is required")

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string
	// HTTPClient is the transport underneath the bearer-token wrapper.
	// Default has a 20s timeout.
	HTTPClient *http.Client
	// MaxPages bounds each listing. Default 1000.
	MaxPages int
	// RequestsPerSecond paces outbound requests. Zero or less disables pacing.
	RequestsPerSecond float64
	// MaxRetries applies to 429 and 5xx responses and transport errors.
	// Default 2. Negative disables retries.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Logger     *zap.Logger
}

// Client lists organizations and memberships.
type Client struct {
	baseURL    string
	http       *http.Client
	maxPages   int
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	log        *zap.Logger
}

// New creates a Client authenticated with opts.APIKey.
func New(opts Options) (*Client, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, ErrNoAPIKey
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	underlying := opts.HTTPClient
	if underlying == nil {
		underlying = &http.Client{Timeout: 20 * time.Second}
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, underlying)
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: key, TokenType: "Bearer"}))
	hc.Timeout = underlying.Timeout

	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = 1000
	}
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		baseURL:    base,
		http:       hc,
		maxPages:   maxPages,
		limiter:    limiter,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		log:        log,
	}, nil
}

// ListOrganizations returns every organization.
func (c *Client) ListOrganizations(ctx context.Context) ([]Organization, error) {
	return listAll[Organization](ctx, c, "/organizations", nil)
}

// ListOrganizationMemberships returns every membership of orgID.
func (c *Client) ListOrganizationMemberships(ctx context.Context, orgID string) ([]OrganizationMembership, error) {
	q := url.Values{}
	q.Set("organization_id", orgID)
	return listAll[OrganizationMembership](ctx, c, "/user_management/organization_memberships", q)
}

// ListUserMemberships returns every membership of userID across all
// organizations.
func (c *Client) ListUserMemberships(ctx context.Context, userID string) ([]OrganizationMembership, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	return listAll[OrganizationMembership](ctx, c, "/user_management/organization_memberships", q)
}

// BuildUserMembershipMap lists every organization and each organization's
// memberships and groups them by user. Roles the provider omits become
// defaultRole. Inactive memberships are left out.
func (c *Client) BuildUserMembershipMap(ctx context.Context, defaultRole string) (map[string][]models.ProposedMembership, error) {
	orgs, err := c.ListOrganizations(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]models.ProposedMembership)
	for _, org := range orgs {
		members, err := c.ListOrganizationMemberships(ctx, org.ID)
		if err != nil {
			return nil, fmt.Errorf("organization %s: %w", org.ID, err)
		}
		for _, m := range members {
			if m.UserID == "" || !m.Active() {
				continue
			}
			out[m.UserID] = append(out[m.UserID], models.ProposedMembership{
				OrgID:   org.ID,
				OrgName: org.Name,
				Role:    m.RoleSlug(defaultRole),
			})
		}
	}
	c.log.Debug("built membership map",
		zap.Int("organizations", len(orgs)),
		zap.Int("users", len(out)))
	return out, nil
}

// UserSnapshot returns userID's active memberships as a full snapshot.
// Organization names come from the membership when the provider includes
// them; otherwise they are left empty and any stored name is kept.
func (c *Client) UserSnapshot(ctx context.Context, userID, defaultRole string) ([]models.ProposedMembership, error) {
	members, err := c.ListUserMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.ProposedMembership, 0, len(members))
	for _, m := range members {
		if m.OrganizationID == "" || !m.Active() {
			continue
		}
		out = append(out, models.ProposedMembership{
			OrgID:   m.OrganizationID,
			OrgName: m.OrganizationName,
			Role:    m.RoleSlug(defaultRole),
		})
	}
	return out, nil
}

func listAll[T any](ctx context.Context, c *Client, path string, q url.Values) ([]T, error) {
	var out []T
	after := ""
	for page := 0; ; page++ {
		if page >= c.maxPages {
			return nil, fmt.Errorf("%w (%d pages of %s)", ErrTooManyPages, c.maxPages, path)
		}

		params := url.Values{}
		for k, v := range q {
			params[k] = v
		}
		params.Set("limit", strconv.Itoa(PageSize))
		if after != "" {
			params.Set("after", after)
		}

		var resp listResponse[T]
		if err := c.getJSON(ctx, path, params, &resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Data...)

		next := resp.ListMetadata.After
		if next == "" {
			return out, nil
		}
		if next == after {
			return nil, fmt.Errorf("%w (cursor %q on %s)", ErrCursorStuck, next, path)
		}
		after = next
	}
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, dst any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt < c.maxRetries {
				if werr := sleepContext(ctx, c.retryDelay(attempt+1, "")); werr != nil {
					return werr
				}
				continue
			}
			return err
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if err := json.Unmarshal(body, dst); err != nil {
				return fmt.Errorf("workos: %s: decode: %w", path, err)
			}
			return nil
		}

		apiErr := &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body)), Path: path}
		if apiErr.Retryable() && attempt < c.maxRetries {
			c.log.Debug("retrying workos request",
				zap.String("path", path),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1))
			if werr := sleepContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); werr != nil {
				return werr
			}
			continue
		}
		return apiErr
	}
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if s, err := strconv.Atoi(strings.TrimSpace(retryAfterHeader)); err == nil && s > 0 {
		d := time.Duration(s) * time.Second
		if d > c.maxDelay {
			return c.maxDelay
		}
		return d
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return delay
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
