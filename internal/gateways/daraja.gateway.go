package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/champfund/donation-gateway/pkg/logger"
	"github.com/valyala/fasthttp"
)

const (
	DefaultBaseURL = "https://api.safaricom.co.ke"

	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	pushPath  = "/mpesa/stkpush/v1/processrequest"

	// The gateway fixes these for paybill STK pushes.
	transactionType = "CustomerPayBillOnline"
	transactionDesc = "Donation Payment"
	defaultAccount  = "Donation"

	timestampLayout = "20060102150405"
)

var (
	ErrMalformedTokenResponse = errors.New("token response missing access_token")
)

// AuthError reports a non-2xx response from the OAuth token endpoint.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("daraja token endpoint returned %d: %s", e.Status, e.Body)
}

// PushError reports a failed STK push: either a transport failure (Err set)
// or a non-2xx gateway response (Status/Body set).
type PushError struct {
	Status int
	Body   string
	Err    error
}

func (e *PushError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stk push request failed: %v", e.Err)
	}
	return fmt.Sprintf("stk push endpoint returned %d: %s", e.Status, e.Body)
}

func (e *PushError) Unwrap() error { return e.Err }

type Config struct {
	ConsumerKey    string
	ConsumerSecret string
	BaseURL        string
	Shortcode      string
	Passkey        string
	CallbackURL    string

	// Timeout bounds every outbound call. The upstream enforces none, so
	// requests would otherwise block a handler indefinitely.
	Timeout         time.Duration
	MaxConns        int
	ReadBufferSize  int
	WriteBufferSize int
}

// TokenCache stores short-lived bearer tokens between pushes. A nil cache
// means every push fetches a fresh token.
type TokenCache interface {
	Get(ctx context.Context) (string, error)
	Put(ctx context.Context, token string, ttl time.Duration) error
}

type Client struct {
	config *Config
	client *fasthttp.Client
	tokens TokenCache
}

func NewClient(config *Config, tokens TokenCache) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.ConsumerKey == "" || config.ConsumerSecret == "" {
		return nil, errors.New("consumer key and secret are required")
	}
	if config.Shortcode == "" || config.Passkey == "" {
		return nil, errors.New("shortcode and passkey are required")
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	httpClient := &fasthttp.Client{
		MaxConnsPerHost:     config.MaxConns,
		ReadTimeout:         config.Timeout,
		WriteTimeout:        config.Timeout,
		MaxIdleConnDuration: 60 * time.Second,
		ReadBufferSize:      config.ReadBufferSize,
		WriteBufferSize:     config.WriteBufferSize,
	}

	logger.Info("Daraja client initialized", "base_url", config.BaseURL, "shortcode", config.Shortcode, "timeout", config.Timeout)

	return &Client{
		config: config,
		client: httpClient,
		tokens: tokens,
	}, nil
}

// Password derives the request signing password for the given moment and
// returns it with the matching timestamp.
func Password(shortcode, passkey string, t time.Time) (string, string) {
	timestamp := t.Format(timestampLayout)
	password := base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
	return password, timestamp
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"` // seconds, sent as a string
}

// AccessToken obtains a bearer token via client-credential basic auth,
// consulting the cache first when one is configured.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if c.tokens != nil {
		if token, err := c.tokens.Get(ctx); err == nil && token != "" {
			return token, nil
		}
	}

	basic := base64.StdEncoding.EncodeToString([]byte(c.config.ConsumerKey + ":" + c.config.ConsumerSecret))
	status, body, err := c.do(ctx, fasthttp.MethodGet, tokenPath, "Basic "+basic, nil)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	if status < 200 || status > 299 {
		return "", &AuthError{Status: status, Body: string(body)}
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedTokenResponse, err)
	}
	if resp.AccessToken == "" {
		return "", ErrMalformedTokenResponse
	}

	if c.tokens != nil {
		if ttl := tokenTTL(resp.ExpiresIn); ttl > 0 {
			if err := c.tokens.Put(ctx, resp.AccessToken, ttl); err != nil {
				logger.Warn("Failed to cache access token", "error", err)
			}
		}
	}

	return resp.AccessToken, nil
}

// tokenTTL converts the reported lifetime into a cache TTL with a safety
// margin so a cached token never arrives at the gateway already expired.
func tokenTTL(expiresIn string) time.Duration {
	secs, err := strconv.Atoi(expiresIn)
	if err != nil {
		return 0
	}
	return time.Duration(secs-60) * time.Second
}

type STKPushRequest struct {
	PhoneNumber      string
	Amount           int64
	AccountReference string
}

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPush sends a signed push-payment request. The gateway's response body
// is returned verbatim; callers treat it as opaque.
func (c *Client) STKPush(ctx context.Context, req *STKPushRequest) (json.RawMessage, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := Password(c.config.Shortcode, c.config.Passkey, time.Now())

	account := req.AccountReference
	if account == "" {
		account = defaultAccount
	}

	payload := stkPushPayload{
		BusinessShortCode: c.config.Shortcode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   transactionType,
		Amount:            req.Amount,
		PartyA:            req.PhoneNumber,
		PartyB:            c.config.Shortcode,
		PhoneNumber:       req.PhoneNumber,
		CallBackURL:       c.config.CallbackURL,
		AccountReference:  account,
		TransactionDesc:   transactionDesc,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal push payload: %w", err)
	}

	status, respBody, err := c.do(ctx, fasthttp.MethodPost, pushPath, "Bearer "+token, body)
	if err != nil {
		return nil, &PushError{Err: err}
	}
	if status < 200 || status > 299 {
		return nil, &PushError{Status: status, Body: string(respBody)}
	}

	logger.Info("STK push accepted", "phone", req.PhoneNumber, "amount", req.Amount, "account", account)

	return json.RawMessage(respBody), nil
}

// do performs one HTTP exchange with the deadline taken from ctx or the
// configured timeout.
func (c *Client) do(ctx context.Context, method, path, authorization string, body []byte) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.config.BaseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAuthorization, authorization)
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}

	result := make([]byte, len(resp.Body()))
	copy(result, resp.Body())

	return resp.StatusCode(), result, nil
}
