package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public Bybit historical data download API.
const DefaultBaseURL = "https://www.bybit.com/x-api/quote/public/support/download"

// APIError represents a non-zero ret_code from the download API.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit api error %d: %s", e.Code, e.Message)
}

// Client is a Bybit download API client.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// NewClient creates a new download API client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
			"AppleWebKit/537.36",
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetUserAgent overrides the User-Agent header sent with API requests.
func (c *Client) SetUserAgent(ua string) {
	if ua != "" {
		c.userAgent = ua
	}
}

// ListSymbols fetches the symbols available for a market/product pair.
func (c *Client) ListSymbols(ctx context.Context, market, product string) ([]string, error) {
	params := url.Values{}
	params.Set("bizType", market)
	params.Set("productId", product)

	resp, err := c.doAPIRequest(ctx, "list-options", params)
	if err != nil {
		return nil, err
	}

	var result symbolsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to decode symbols: %w", err)
	}

	return result.Symbols, nil
}

// ListFiles fetches the downloadable archives for one date window.
func (c *Client) ListFiles(ctx context.Context, p ListFilesParams) ([]RemoteFile, error) {
	params := url.Values{}
	params.Set("bizType", p.Market)
	params.Set("productId", p.Product)
	params.Set("symbols", p.Symbol)
	params.Set("interval", "daily")
	params.Set("periods", "")
	params.Set("startDay", p.StartDay)
	params.Set("endDay", p.EndDay)

	resp, err := c.doAPIRequest(ctx, "list-files", params)
	if err != nil {
		return nil, err
	}

	var result filesResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to decode file list: %w", err)
	}

	return result.List, nil
}

// doAPIRequest performs an API request and parses the JSON envelope.
func (c *Client) doAPIRequest(ctx context.Context, endpoint string, params url.Values) (*Response, error) {
	urlStr := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var apiResp Response
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if apiResp.RetCode != 0 {
		msg := apiResp.RetMsg
		if msg == "" {
			msg = "unknown error"
		}
		return nil, &APIError{Code: apiResp.RetCode, Message: msg}
	}

	return &apiResp, nil
}
