package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/picksync/backend/internal/domain/integration"
)

// maxResponseSize is the maximum allowed response size from the storefront API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// accessTokenHeader carries the private-app token on every request
const accessTokenHeader = "X-Access-Token"

// nextLinkPattern extracts the page_info cursor from the Link response
// header, e.g. <https://shop.example.com/...orders.json?page_info=abc&limit=250>; rel="next"
var nextLinkPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// StorefrontClientConfig holds the connection settings for the storefront
// admin API
type StorefrontClientConfig struct {
	BaseURL     string
	AccessToken string
	APIVersion  string
	Timeout     time.Duration
}

// Validate checks the configuration
func (c *StorefrontClientConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("storefront: base URL is required")
	}
	if c.AccessToken == "" {
		return fmt.Errorf("storefront: access token is required")
	}
	if c.APIVersion == "" {
		return fmt.Errorf("storefront: API version is required")
	}
	return nil
}

// StorefrontClient implements OrderFeedClient against the storefront's
// admin REST API
type StorefrontClient struct {
	config     *StorefrontClientConfig
	httpClient *http.Client
}

// NewStorefrontClient creates a new StorefrontClient
func NewStorefrontClient(config *StorefrontClientConfig) (*StorefrontClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &StorefrontClient{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// ListOpenOrders fetches one page of open, unfulfilled orders
func (c *StorefrontClient) ListOpenOrders(ctx context.Context, req integration.OrderPageRequest) (*integration.OrderPage, error) {
	endpoint := fmt.Sprintf("%s/admin/api/%s/orders.json",
		strings.TrimRight(c.config.BaseURL, "/"), c.config.APIVersion)

	query := url.Values{}
	query.Set("status", "open")
	query.Set("fulfillment_status", "unfulfilled")
	query.Set("limit", strconv.Itoa(req.PageSize))
	if req.PageToken != "" {
		query.Set("page_info", req.PageToken)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("storefront: failed to create request: %w", err)
	}
	httpReq.Header.Set(accessTokenHeader, c.config.AccessToken)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("storefront: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: HTTP %d", integration.ErrFeedRateLimited, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", integration.ErrFeedUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: HTTP %d", integration.ErrFeedRequestFailed, resp.StatusCode)
	}

	var parsed ordersResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrFeedInvalidResponse, err)
	}

	page := &integration.OrderPage{}
	for i := range parsed.Orders {
		page.Orders = append(page.Orders, parsed.Orders[i].toDomain())
	}

	if token := nextPageToken(resp.Header.Get("Link")); token != "" {
		page.NextPageToken = token
		page.HasMore = true
	}

	return page, nil
}

// nextPageToken pulls the page_info cursor out of the Link header,
// empty when there is no next page
func nextPageToken(linkHeader string) string {
	if linkHeader == "" {
		return ""
	}

	for _, part := range strings.Split(linkHeader, ",") {
		match := nextLinkPattern.FindStringSubmatch(strings.TrimSpace(part))
		if match == nil {
			continue
		}
		parsed, err := url.Parse(match[1])
		if err != nil {
			continue
		}
		if token := parsed.Query().Get("page_info"); token != "" {
			return token
		}
	}
	return ""
}
