package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	maxCatalogSize = 4 << 20
	fetchRetries   = 2
)

// Client загружает каталог с удалённого адреса. Запоминает ETag последнего
// успешного ответа и отправляет его в If-None-Match.
type Client struct {
	url        string
	httpClient *retryablehttp.Client

	mu   sync.Mutex
	etag string
}

// NewClient создаёт HTTP-клиент для загрузки каталога по указанному адресу.
func NewClient(url string) *Client {
	url = strings.TrimSpace(url)
	if url != "" && !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.RetryMax = fetchRetries
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.CheckRetry = checkRetry
	rc.Logger = nil

	return &Client{
		url:        url,
		httpClient: rc,
	}
}

// checkRetry повторяет запрос при сетевых ошибках и 5xx. На 429 не повторяет:
// паузу по Retry-After выдерживает Refresher.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Fetch запрашивает каталог. Возвращает nil-каталог при 304 и 429;
// для 429 дополнительно возвращается значение Retry-After.
func (c *Client) Fetch(ctx context.Context) (*Catalog, int, time.Duration, error) {
	if c == nil || c.url == "" {
		return nil, 0, 0, fmt.Errorf("catalog client not configured")
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/yaml")

	c.mu.Lock()
	if c.etag != "" {
		req.Header.Set("If-None-Match", c.etag)
	}
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, resp.StatusCode, retryAfter, nil
	case http.StatusNotModified:
		return nil, resp.StatusCode, 0, nil
	case http.StatusOK:
	default:
		return nil, resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogSize))
	if err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("read response: %w", err)
	}

	cat, err := Parse(body)
	if err != nil {
		return nil, resp.StatusCode, 0, err
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		c.mu.Lock()
		c.etag = etag
		c.mu.Unlock()
	}

	return cat, resp.StatusCode, 0, nil
}
