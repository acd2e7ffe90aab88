// Package msgraph is the calendar and mail client for the organizer mailbox,
// backed by the Microsoft Graph v1.0 REST API with app-only credentials.
package msgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/gommon/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	graphScope = "https://graph.microsoft.com/.default"
	tokenURL   = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

	// Tokens are refreshed this long before Graph would reject them.
	tokenSkew = 2 * time.Minute
	senderTTL = time.Hour
)

// ErrEventNotFound is returned by GetEvent when the event no longer exists.
var ErrEventNotFound = errors.New("calendar event not found")

// APIError is a non-2xx Graph response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("graph API error %d", e.Status)
	}
	return fmt.Sprintf("graph API error %d (%s): %s", e.Status, e.Code, e.Message)
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Mailbox      string
	BaseURL      string
	Timeout      time.Duration
	RPS          float64
}

// TokenFetcher obtains a fresh access token.
type TokenFetcher func(ctx context.Context) (*oauth2.Token, error)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithTokenFetcher(f TokenFetcher) Option {
	return func(c *Client) {
		c.fetchToken = f
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

type Client struct {
	baseURL    string
	mailbox    string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	fetchToken TokenFetcher
	now        func() time.Time

	tokens *expiringCache[string]
	sender *expiringCache[*SenderIdentity]
}

func NewClient(cfg Config, opts ...Option) *Client {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf(tokenURL, url.PathEscape(cfg.TenantID)),
		Scopes:       []string{graphScope},
	}

	burst := int(cfg.RPS)
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		baseURL:    cfg.BaseURL,
		mailbox:    cfg.Mailbox,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RPS), burst),
		fetchToken: cc.Token,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.tokens = newExpiringCache[string](c.now)
	c.sender = newExpiringCache[*SenderIdentity](c.now)
	return c
}

// GetEvent fetches an event with its attendee responses. A missing event
// yields ErrEventNotFound.
func (c *Client) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	q := url.Values{}
	q.Set("$select", "id,subject,attendees,organizer")

	var event Event
	err := c.do(ctx, http.MethodGet, c.eventPath(eventID)+"?"+q.Encode(), nil, &event)
	if IsNotFound(err) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	return &event, nil
}

func (c *Client) UpdateEvent(ctx context.Context, eventID string, patch *EventPatch) error {
	if err := c.do(ctx, http.MethodPatch, c.eventPath(eventID), patch, nil); err != nil {
		return fmt.Errorf("update event %s: %w", eventID, err)
	}
	return nil
}

// CancelEvent cancels the meeting and notifies attendees. An event that is
// already gone counts as cancelled.
func (c *Client) CancelEvent(ctx context.Context, eventID, comment string) error {
	body := map[string]string{"comment": comment}
	err := c.do(ctx, http.MethodPost, c.eventPath(eventID)+"/cancel", body, nil)
	if IsNotFound(err) {
		log.Infof("event %s already gone, treating cancel as done", eventID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("cancel event %s: %w", eventID, err)
	}
	return nil
}

func (c *Client) SendMail(ctx context.Context, msg *Message) error {
	body := struct {
		Message         *Message `json:"message"`
		SaveToSentItems bool     `json:"saveToSentItems"`
	}{Message: msg, SaveToSentItems: true}

	if err := c.do(ctx, http.MethodPost, c.mailboxPath()+"/sendMail", body, nil); err != nil {
		return fmt.Errorf("send mail to %d recipient(s): %w", len(msg.ToRecipients), err)
	}
	return nil
}

// ResolveSender returns the identity of the configured mailbox, cached for an hour.
func (c *Client) ResolveSender(ctx context.Context) (*SenderIdentity, error) {
	return c.sender.get(ctx, func(ctx context.Context) (Expiring[*SenderIdentity], error) {
		q := url.Values{}
		q.Set("$select", "id,displayName,mail,userPrincipalName")

		var id SenderIdentity
		if err := c.do(ctx, http.MethodGet, c.mailboxPath()+"?"+q.Encode(), nil, &id); err != nil {
			return Expiring[*SenderIdentity]{}, fmt.Errorf("resolve sender %s: %w", c.mailbox, err)
		}
		return Expiring[*SenderIdentity]{Value: &id, Expiry: c.now().Add(senderTTL)}, nil
	})
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	return c.tokens.get(ctx, func(ctx context.Context) (Expiring[string], error) {
		tok, err := c.fetchToken(ctx)
		if err != nil {
			return Expiring[string]{}, fmt.Errorf("acquire graph token: %w", err)
		}
		expiry := tok.Expiry.Add(-tokenSkew)
		if tok.Expiry.IsZero() {
			expiry = c.now().Add(time.Hour - tokenSkew)
		}
		return Expiring[string]{Value: tok.AccessToken, Expiry: expiry}, nil
	})
}

func (c *Client) mailboxPath() string {
	return "/users/" + url.PathEscape(c.mailbox)
}

func (c *Client) eventPath(eventID string) string {
	return c.mailboxPath() + "/events/" + url.PathEscape(eventID)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.invalidate()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, raw []byte) *APIError {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	apiErr := &APIError{Status: status}
	if json.Unmarshal(raw, &envelope) == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}
