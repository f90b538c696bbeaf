// Package vietqr 调用 VietQR 风格的收款码接口，根据金额和附言生成二维码图片。
package vietqr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/qs3c/petvip_server/config"
)

const successCode = "00"

var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrMissingConfig = errors.New("qr provider config missing")
	ErrProvider      = errors.New("qr provider error")
)

// Result 接口返回的结果，只可能是 Success 或 Failure
type Result interface {
	isResult()
}

// Success 生成成功，Image 为解码后的图片字节
type Success struct {
	Image []byte
}

// Failure 接口返回了业务错误码，或响应中没有图片
type Failure struct {
	Code    string
	Message string
}

func (Success) isResult() {}
func (Failure) isResult() {}

type Client struct {
	baseURL     string
	clientID    string
	apiKey      string
	accountNo   string
	accountName string
	acqID       string
	template    string
	timeout     time.Duration
	httpClient  *http.Client
}

func NewClient(cfg *config.QRConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		clientID:    cfg.ClientID,
		apiKey:      cfg.APIKey,
		accountNo:   cfg.AccountNo,
		accountName: cfg.AccountName,
		acqID:       cfg.AcqID,
		template:    cfg.Template,
		timeout:     timeout,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Validate 检查必需配置
func (c *Client) Validate() error {
	var missing []string
	if c.baseURL == "" {
		missing = append(missing, "base_url")
	}
	if c.clientID == "" {
		missing = append(missing, "client_id")
	}
	if c.apiKey == "" {
		missing = append(missing, "api_key")
	}
	if c.accountNo == "" {
		missing = append(missing, "account_no")
	}
	if c.acqID == "" {
		missing = append(missing, "acq_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingConfig, missing)
	}
	return nil
}

type generateRequest struct {
	AccountNo   string `json:"accountNo"`
	AccountName string `json:"accountName,omitempty"`
	AcqID       int    `json:"acqId"`
	Amount      int64  `json:"amount"`
	AddInfo     string `json:"addInfo"`
	Format      string `json:"format"`
	Template    string `json:"template,omitempty"`
}

type generateResponse struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
	Data *struct {
		QRCode    string `json:"qrCode"`
		QRDataURL string `json:"qrDataURL"`
	} `json:"data"`
}

// Issue 生成收款码，返回图片字节
func (c *Client) Issue(ctx context.Context, amount decimal.Decimal, memo string) ([]byte, error) {
	result, err := c.Generate(ctx, amount, memo)
	if err != nil {
		return nil, err
	}

	switch r := result.(type) {
	case Success:
		return r.Image, nil
	case Failure:
		return nil, fmt.Errorf("%w: code=%s desc=%s", ErrProvider, r.Code, r.Message)
	default:
		return nil, fmt.Errorf("%w: unexpected result %T", ErrProvider, result)
	}
}

// Generate 调用接口并把响应转换为 Result；网络和协议层面的错误通过 error 返回
func (c *Client) Generate(ctx context.Context, amount decimal.Decimal, memo string) (Result, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !amount.IsInteger() {
		return nil, fmt.Errorf("%w: amount %s has minor units", ErrInvalidAmount, amount)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	acqID, err := strconv.Atoi(c.acqID)
	if err != nil {
		return nil, fmt.Errorf("%w: acq_id %q is not numeric", ErrMissingConfig, c.acqID)
	}

	body, err := json.Marshal(generateRequest{
		AccountNo:   c.accountNo,
		AccountName: c.accountName,
		AcqID:       acqID,
		Amount:      amount.IntPart(),
		AddInfo:     memo,
		Format:      "text",
		Template:    c.template,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	req.Header.Set("x-client-id", c.clientID)
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, string(msg))
	}

	var payload generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrProvider, err)
	}

	if payload.Code != successCode {
		return Failure{Code: payload.Code, Message: payload.Desc}, nil
	}
	if payload.Data == nil || payload.Data.QRDataURL == "" {
		return Failure{Code: payload.Code, Message: "response has no qrDataURL"}, nil
	}

	image, err := decodeDataURL(payload.Data.QRDataURL)
	if err != nil {
		return Failure{Code: payload.Code, Message: err.Error()}, nil
	}
	return Success{Image: image}, nil
}

// decodeDataURL 解析 data:image/png;base64,xxxx
func decodeDataURL(dataURL string) ([]byte, error) {
	encoded := dataURL
	if strings.HasPrefix(dataURL, "data:") {
		idx := strings.Index(dataURL, ",")
		if idx < 0 {
			return nil, errors.New("malformed data url")
		}
		if !strings.HasSuffix(dataURL[:idx], ";base64") {
			return nil, errors.New("data url is not base64 encoded")
		}
		encoded = dataURL[idx+1:]
	}

	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	if len(image) == 0 {
		return nil, errors.New("empty image")
	}
	return image, nil
}
