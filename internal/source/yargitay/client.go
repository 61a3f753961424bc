// Package yargitay implements the record source for the Yargıtay decision
// search API.
package yargitay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/adaletdata/uploader/internal/uploader"
)

// ClientConfig captures the parameters of the upstream API client.
type ClientConfig struct {
	BaseURL           string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Client talks to the decision search API. All requests share one rate
// limiter so search pages and document downloads together stay polite.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient builds a Client. Zero-value config fields fall back to the
// production endpoint and conservative politeness defaults.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://karararama.yargitay.gov.tr"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	rps := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		rps = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		limiter:    rate.NewLimiter(rps, 1),
		logger:     logger,
	}
}

// flexibleID accepts the upstream id field whether it arrives as a JSON
// number or a string.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %w", err)
	}
	*f = flexibleID(n.String())
	return nil
}

// DecisionItem is one search hit as returned by the API.
type DecisionItem struct {
	ID           flexibleID `json:"id"`
	Daire        string     `json:"daire"`
	EsasNo       string     `json:"esasNo"`
	KararNo      string     `json:"kararNo"`
	KararTarihi  string     `json:"kararTarihi"`
	ArananKelime string     `json:"arananKelime"`
}

type searchCriteria struct {
	ArananKelime       string `json:"arananKelime"`
	BirimYrgKurulDaire string `json:"birimYrgKurulDaire"`
	KararYil           string `json:"kararYil"`
	BaslangicTarihi    string `json:"baslangicTarihi"`
	BitisTarihi        string `json:"bitisTarihi"`
	PageSize           int    `json:"pageSize"`
	PageNumber         int    `json:"pageNumber"`
	EsasYil            string `json:"esasYil"`
	EsasIlkSiraNo      string `json:"esasIlkSiraNo"`
	EsasSonSiraNo      string `json:"esasSonSiraNo"`
	KararIlkSiraNo     string `json:"kararIlkSiraNo"`
	KararSonSiraNo     string `json:"kararSonSiraNo"`
}

type searchRequest struct {
	Data searchCriteria `json:"data"`
}

type searchResponse struct {
	Data struct {
		Data []DecisionItem `json:"data"`
	} `json:"data"`
}

// Search fetches one page of decisions matching the term. An empty slice
// means the result set is exhausted.
func (c *Client) Search(ctx context.Context, term string, pageSize, page int) ([]DecisionItem, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	payload := searchRequest{Data: searchCriteria{
		ArananKelime: term,
		PageSize:     pageSize,
		PageNumber:   page,
	}}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/aramadetaylist", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: search request: %v", uploader.ErrSourceUnavailable, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("failed to close search response body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: search returned status %d", uploader.ErrSourceUnavailable, resp.StatusCode)
	}

	var parsed searchResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode search response: %v", uploader.ErrSourceMalformed, err)
	}
	return parsed.Data.Data, nil
}

// DecisionText downloads the full text of a decision by id and strips the
// markup down to plain text.
func (c *Client) DecisionText(ctx context.Context, id string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := fmt.Sprintf("%s/getDokuman?id=%s", c.baseURL, url.QueryEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build document request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: document request: %v", uploader.ErrSourceUnavailable, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("failed to close document response body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: document %s returned status %d", uploader.ErrSourceUnavailable, id, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read document %s: %v", uploader.ErrSourceUnavailable, id, err)
	}
	// The response wraps the document in a DTO envelope; strip everything
	// down to the text itself.
	text := StripHTML(string(raw))
	return text, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", c.baseURL+"/")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}
