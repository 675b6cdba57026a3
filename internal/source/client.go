package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client 访问只提供 list 接口的 HTTP JSON 服务
type Client struct {
	baseUrl    *url.URL
	httpClient *http.Client
	Token      string // Bearer Token，可为空
}

func NewClient(apiURL string, token string, timeout time.Duration) (*Client, error) {
	baseUrl, err := url.Parse(apiURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseUrl:    baseUrl,
		httpClient: &http.Client{Timeout: timeout},
		Token:      token,
	}, nil
}

// Get 请求 path 并把响应解码到 result。
// 响应可以是裸 JSON，也可以是 {"data": ...} 包装
func (c *Client) Get(ctx context.Context, path string, result interface{}) error {
	u := c.baseUrl.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			return fmt.Errorf("list API error (status %d): %s", resp.StatusCode, errResp.Message)
		}
		return fmt.Errorf("list API error (status %d): %s", resp.StatusCode, string(body))
	}

	if result == nil {
		return nil
	}
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		var apiResp struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &apiResp); err == nil && len(apiResp.Data) > 0 {
			return json.Unmarshal(apiResp.Data, result)
		}
	}
	return json.Unmarshal(body, result)
}
