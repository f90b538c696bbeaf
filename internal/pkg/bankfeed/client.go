// Package bankfeed 拉取银行聚合平台（SePay 风格接口）上收款账户的最近交易。
package bankfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/qs3c/petvip_server/config"
)

const dateLayout = "2006-01-02 15:04:05"

var (
	ErrMissingConfig = errors.New("bank feed config missing")
	ErrFeed          = errors.New("bank feed request failed")
)

// Transaction 一条入账交易，只在一次拉取内有效
type Transaction struct {
	ID         string
	AmountIn   decimal.Decimal
	Content    string
	OccurredAt time.Time
}

type Client struct {
	baseURL       string
	apiKey        string
	accountNumber string
	limit         int
	timeout       time.Duration
	loc           *time.Location
	httpClient    *http.Client
}

// NewClient 创建流水客户端；凭证缺失时不报错，在第一次调用时返回 ErrMissingConfig
func NewClient(cfg *config.BankFeedConfig, loc *time.Location) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if loc == nil {
		loc = time.Local
	}
	return &Client{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		accountNumber: cfg.AccountNumber,
		limit:         cfg.Limit,
		timeout:       timeout,
		loc:           loc,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// Validate 检查必需配置
func (c *Client) Validate() error {
	var missing []string
	if c.baseURL == "" {
		missing = append(missing, "base_url")
	}
	if c.apiKey == "" {
		missing = append(missing, "api_key")
	}
	if c.accountNumber == "" {
		missing = append(missing, "account_number")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingConfig, missing)
	}
	return nil
}

type listResponse struct {
	Status   int             `json:"status"`
	Error    json.RawMessage `json:"error"`
	Messages struct {
		Success bool `json:"success"`
	} `json:"messages"`
	Transactions []rawTransaction `json:"transactions"`
}

type rawTransaction struct {
	ID                 flexibleID      `json:"id"`
	AmountIn           decimal.Decimal `json:"amount_in"`
	TransactionContent string          `json:"transaction_content"`
	TransactionDate    string          `json:"transaction_date"`
}

// flexibleID 接口的 id 有时是字符串有时是数字
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

// Recent 拉取最近的入账交易（数量受 limit 限制）
func (c *Client) Recent(ctx context.Context) ([]Transaction, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := url.Values{}
	query.Set("account_number", c.accountNumber)
	if c.limit > 0 {
		query.Set("limit", strconv.Itoa(c.limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transactions/list?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeed, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrFeed, resp.StatusCode, string(body))
	}

	var payload listResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrFeed, err)
	}
	if payload.Status != 0 && payload.Status != http.StatusOK {
		return nil, fmt.Errorf("%w: api status %d", ErrFeed, payload.Status)
	}
	if !payload.Messages.Success {
		return nil, fmt.Errorf("%w: api reported failure: %s", ErrFeed, string(payload.Error))
	}

	txs := make([]Transaction, 0, len(payload.Transactions))
	for _, raw := range payload.Transactions {
		if raw.ID == "" {
			return nil, fmt.Errorf("%w: transaction without id", ErrFeed)
		}
		occurredAt, err := time.ParseInLocation(dateLayout, raw.TransactionDate, c.loc)
		if err != nil {
			return nil, fmt.Errorf("%w: transaction %s: bad date %q", ErrFeed, raw.ID, raw.TransactionDate)
		}
		txs = append(txs, Transaction{
			ID:         string(raw.ID),
			AmountIn:   raw.AmountIn,
			Content:    raw.TransactionContent,
			OccurredAt: occurredAt,
		})
	}

	return txs, nil
}
