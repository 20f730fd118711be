package ethereum

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultPageSize is the Etherscan getLogs page size. The API caps a
// single response at 1000 records.
const DefaultPageSize = 1000

// RawLog is one record from the Etherscan logs API. Numeric fields are
// hex strings as returned by the API.
type RawLog struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     string   `json:"blockNumber"`
	TimeStamp       string   `json:"timeStamp"`
	TransactionHash string   `json:"transactionHash"`
	LogIndex        string   `json:"logIndex"`
}

// LogQuery describes one getLogs page request.
type LogQuery struct {
	Address   string
	FromBlock int64
	ToBlock   int64 // zero means latest
	Topic0    string
	Topic1    string
	Topic2    string
}

// LogClient fetches historical contract logs from the Etherscan API with
// bounded retries.
type LogClient struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
}

// LogClientOption configures a LogClient.
type LogClientOption func(*LogClient)

// WithLogHTTPClient sets a custom HTTP client.
func WithLogHTTPClient(client *http.Client) LogClientOption {
	return func(c *LogClient) {
		c.client = client
	}
}

// WithLogRetries sets retry attempts and initial delay.
func WithLogRetries(maxRetries int, delay time.Duration) LogClientOption {
	return func(c *LogClient) {
		c.maxRetries = maxRetries
		c.retryDelay = delay
	}
}

// NewLogClient creates an Etherscan log client. baseURL is the API root,
// e.g. "https://api.etherscan.io/api".
func NewLogClient(baseURL, apiKey string, opts ...LogClientOption) *LogClient {
	c := &LogClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetLogs fetches one page of logs matching the query, oldest first.
// An empty page means no more logs past FromBlock.
func (c *LogClient) GetLogs(ctx context.Context, q LogQuery) ([]RawLog, error) {
	params := url.Values{}
	params.Set("module", "logs")
	params.Set("action", "getLogs")
	params.Set("address", q.Address)
	params.Set("fromBlock", fmt.Sprintf("%d", q.FromBlock))
	if q.ToBlock > 0 {
		params.Set("toBlock", fmt.Sprintf("%d", q.ToBlock))
	} else {
		params.Set("toBlock", "latest")
	}
	if q.Topic0 != "" {
		params.Set("topic0", q.Topic0)
	}
	if q.Topic1 != "" {
		params.Set("topic1", q.Topic1)
		if q.Topic0 != "" {
			params.Set("topic0_1_opr", "and")
		}
	}
	if q.Topic2 != "" {
		params.Set("topic2", q.Topic2)
		if q.Topic0 != "" {
			params.Set("topic0_2_opr", "and")
		}
	}
	params.Set("page", "1")
	params.Set("offset", fmt.Sprintf("%d", DefaultPageSize))
	params.Set("apikey", c.apiKey)

	reqURL := c.baseURL + "?" + params.Encode()

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		logs, err := c.fetchPage(ctx, reqURL)
		if err == nil {
			return logs, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("get logs from block %d: %w", q.FromBlock, lastErr)
}

func (c *LogClient) fetchPage(ctx context.Context, reqURL string) ([]RawLog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var envelope struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	// Status "0" with "No records found" is a legitimate empty page.
	// Any other non-OK status carries the error text in Result.
	if envelope.Status != "1" {
		if strings.Contains(envelope.Message, "No records") {
			return []RawLog{}, nil
		}
		var reason string
		_ = json.Unmarshal(envelope.Result, &reason)
		return nil, fmt.Errorf("api error: %s %s", envelope.Message, reason)
	}

	var logs []RawLog
	if err := json.Unmarshal(envelope.Result, &logs); err != nil {
		return nil, fmt.Errorf("unmarshal logs: %w", err)
	}

	return logs, nil
}
