// Package marketdata implements C1, the Bybit v5 REST client consumed by
// the filter/scorer and the turbo controller: paginated funding/volume/
// spread fetches, instrument precision lookups, and order placement.
package marketdata

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"market_maker/internal/config"
	"market_maker/internal/core"
	apperrors "market_maker/pkg/errors"
	phttp "market_maker/pkg/http"
	"market_maker/pkg/retry"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://api.bybit.com"
	testnetBaseURL   = "https://api-testnet.bybit.com"
	tickersPageLimit = 1000
)

// bybitSigner implements pkg/http.Signer using Bybit v5's HMAC-SHA256
// request signing (timestamp + apiKey + recvWindow + body-or-query).
type bybitSigner struct {
	apiKey    string
	secretKey string
}

func (s *bybitSigner) SignRequest(req *http.Request) error {
	timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())
	recvWindow := "5000"

	var payloadBody string
	switch req.Method {
	case http.MethodGet, http.MethodDelete:
		payloadBody = req.URL.RawQuery
	default:
		if req.GetBody != nil {
			rc, err := req.GetBody()
			if err != nil {
				return err
			}
			b, err := io.ReadAll(rc)
			if err != nil {
				return err
			}
			payloadBody = string(b)
		}
	}

	payload := timestamp + s.apiKey + recvWindow + payloadBody
	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte(payload))
	signature := hex.EncodeToString(mac.Sum(nil))

	req.Header.Set("X-BAPI-API-KEY", s.apiKey)
	req.Header.Set("X-BAPI-SIGN", signature)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
	req.Header.Set("Content-Type", "application/json")
	return nil
}

// Client is the Bybit v5 REST client behind core.IMarketDataClient and
// core.IOrderClient. A single x/time/rate.Limiter is shared across every
// outbound call.
type Client struct {
	http    *phttp.Client
	limiter *rate.Limiter
	logger  core.ILogger
}

// NewClient builds a REST client for the given exchange credentials. reqPerSec
// and burst size the shared token bucket.
func NewClient(cfg config.ExchangeCredsConfig, logger core.ILogger, reqPerSec float64, burst int) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.Testnet {
			baseURL = testnetBaseURL
		} else {
			baseURL = defaultBaseURL
		}
	}

	signer := &bybitSigner{apiKey: string(cfg.APIKey), secretKey: string(cfg.SecretKey)}

	return &Client{
		http:    phttp.NewClient(baseURL, 10*time.Second, signer),
		limiter: rate.NewLimiter(rate.Limit(reqPerSec), burst),
		logger:  logger.WithField("component", "marketdata"),
	}
}

type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

type listResult struct {
	List           json.RawMessage `json:"list"`
	NextPageCursor string          `json:"nextPageCursor"`
}

// get issues a rate-limited, retried GET against path with the given query
// params, decoding the envelope and returning its `result.list` raw bytes
// plus the next-page cursor.
func (c *Client) get(ctx context.Context, path string, params map[string]string) (listResult, error) {
	var lr listResult
	err := retry.Do(ctx, retry.DefaultPolicy, apperrors.IsTransient, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		body, err := c.http.Get(ctx, path, params)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", apperrors.ErrNetwork, path, err)
		}

		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("decode envelope for %s: %w", path, err)
		}
		if env.RetCode != 0 {
			return apperrors.MapRetCode(env.RetCode, env.RetMsg)
		}

		var res listResult
		if len(env.Result) > 0 {
			if err := json.Unmarshal(env.Result, &res); err != nil {
				return fmt.Errorf("decode result for %s: %w", path, err)
			}
		}
		lr = res
		return nil
	})
	return lr, err
}

// post issues a rate-limited, retried POST, returning the decoded envelope's
// `result` raw bytes.
func (c *Client) post(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	var result json.RawMessage
	err := retry.Do(ctx, retry.DefaultPolicy, apperrors.IsTransient, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		respBody, err := c.http.Post(ctx, path, body)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", apperrors.ErrNetwork, path, err)
		}

		var env envelope
		if err := json.Unmarshal(respBody, &env); err != nil {
			return fmt.Errorf("decode envelope for %s: %w", path, err)
		}
		if env.RetCode != 0 {
			return apperrors.MapRetCode(env.RetCode, env.RetMsg)
		}
		result = env.Result
		return nil
	})
	return result, err
}
