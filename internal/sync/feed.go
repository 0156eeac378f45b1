package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/carbase/carbase/internal/common/config"
	"github.com/carbase/carbase/internal/common/middleware"
)

// Record 外部数据源的一条车型记录。
// 缺少任一必填字段（Make/Model/Year/ObjectID）的记录会在处理阶段被跳过。
type Record struct {
	ObjectID string `json:"objectId"`
	Make     string `json:"Make"`
	Model    string `json:"Model"`
	Year     int    `json:"Year"`
	Category string `json:"Category"`
}

func (r Record) complete() bool {
	return r.ObjectID != "" && r.Make != "" && r.Model != "" && r.Year != 0
}

type feedResponse struct {
	Results []Record `json:"results"`
}

// Fetcher 拉取一批外部记录。
type Fetcher interface {
	FetchBatch(ctx context.Context) ([]Record, error)
}

// FeedClient 按 Parse REST 约定访问外部车型 API，
// 外层包一个熔断器：数据源持续故障时快速失败，不再反复打超时。
type FeedClient struct {
	cfg     config.FeedConfig
	httpc   *http.Client
	breaker *middleware.CircuitBreaker
}

func NewFeedClient(cfg config.FeedConfig) *FeedClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FeedClient{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: timeout},
		breaker: middleware.NewCircuitBreaker("car-feed", 5, 30*time.Second),
	}
}

// FetchBatch 拉取一批记录（上限 cfg.BatchLimit）。
// 网络错误或非 2xx 直接整批失败，由调用方决定放弃本轮。
func (c *FeedClient) FetchBatch(ctx context.Context) ([]Record, error) {
	var records []Record
	err := c.breaker.Call(ctx, func() error {
		var ferr error
		records, ferr = c.fetch(ctx)
		return ferr
	})
	return records, err
}

func (c *FeedClient) fetch(ctx context.Context) ([]Record, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed url: %w", err)
	}
	q := u.Query()
	limit := c.cfg.BatchLimit
	if limit <= 0 {
		limit = 10000
	}
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if c.cfg.AppID != "" {
		req.Header.Set("X-Parse-Application-Id", c.cfg.AppID)
	}
	if c.cfg.MasterKey != "" {
		req.Header.Set("X-Parse-Master-Key", c.cfg.MasterKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed returned status %d: %s", resp.StatusCode, string(body))
	}

	var out feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode feed response: %w", err)
	}
	return out.Results, nil
}
