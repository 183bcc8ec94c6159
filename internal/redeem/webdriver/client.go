// internal/redeem/webdriver/client.go

// Package webdriver is a minimal W3C WebDriver wire-protocol client, just
// wide enough to satisfy the redeem.Driver contract. It speaks plain
// HTTP+JSON to a driver endpoint (chromedriver, geckodriver) and knows
// nothing about the DOM beyond opaque element ids.
package webdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redeemly/redeemd/internal/redeem"
)

// w3cElementKey is the fixed JSON key element ids arrive under.
const w3cElementKey = "element-6066-11e4-a52e-4f735466cecf"

const pollInterval = 500 * time.Millisecond

type Client struct {
	base      string
	sessionID string
	http      *http.Client
}

// Options tune session creation.
type Options struct {
	Headless   bool
	ProfileDir string
	UserAgent  string
}

// NewSession opens one browser session against the driver at baseURL.
// Each worker gets its own session bound to its own profile directory.
func NewSession(ctx context.Context, baseURL string, opts Options) (*Client, error) {
	c := &Client{
		base: baseURL,
		http: &http.Client{Timeout: 60 * time.Second},
	}

	args := []string{
		"--disable-blink-features=AutomationControlled",
		"--no-sandbox",
		"--disable-gpu",
		"--disable-extensions",
		"--window-size=1920,1080",
	}
	if opts.Headless {
		args = append(args, "--headless=new")
	}
	if opts.ProfileDir != "" {
		args = append(args, "--user-data-dir="+opts.ProfileDir)
	}
	if opts.UserAgent != "" {
		args = append(args, "user-agent="+opts.UserAgent)
	}

	body := map[string]any{
		"capabilities": map[string]any{
			"alwaysMatch": map[string]any{
				"browserName": "chrome",
				"goog:chromeOptions": map[string]any{
					"args": args,
				},
				"pageLoadStrategy": "eager",
			},
		},
	}

	var resp struct {
		Value struct {
			SessionID string `json:"sessionId"`
		} `json:"value"`
	}
	if err := c.do(ctx, http.MethodPost, "/session", body, &resp); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if resp.Value.SessionID == "" {
		return nil, fmt.Errorf("create session: driver returned no session id")
	}
	c.sessionID = resp.Value.SessionID
	return c, nil
}

func (c *Client) Navigate(ctx context.Context, url string) error {
	return c.do(ctx, http.MethodPost, c.sessionPath("/url"), map[string]string{"url": url}, nil)
}

func (c *Client) FindElements(ctx context.Context, selector string) ([]redeem.Element, error) {
	body := map[string]string{"using": "xpath", "value": selector}
	var resp struct {
		Value []map[string]string `json:"value"`
	}
	if err := c.do(ctx, http.MethodPost, c.sessionPath("/elements"), body, &resp); err != nil {
		return nil, err
	}
	els := make([]redeem.Element, 0, len(resp.Value))
	for _, m := range resp.Value {
		if id := m[w3cElementKey]; id != "" {
			els = append(els, redeem.Element(id))
		}
	}
	return els, nil
}

// WaitClickable polls for a displayed and enabled element matching selector.
// A missing element within the timeout is redeem.ErrWaitTimeout; transport
// failures surface as-is.
func (c *Client) WaitClickable(ctx context.Context, selector string, timeout time.Duration) (redeem.Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		els, err := c.FindElements(ctx, selector)
		if err != nil {
			return "", err
		}
		for _, el := range els {
			ok, err := c.clickable(ctx, el)
			if err != nil {
				return "", err
			}
			if ok {
				return el, nil
			}
		}

		if time.Now().After(deadline) {
			return "", redeem.ErrWaitTimeout
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (c *Client) clickable(ctx context.Context, el redeem.Element) (bool, error) {
	displayed, err := c.elementBool(ctx, el, "displayed")
	if err != nil || !displayed {
		return false, err
	}
	return c.elementBool(ctx, el, "enabled")
}

func (c *Client) elementBool(ctx context.Context, el redeem.Element, prop string) (bool, error) {
	var resp struct {
		Value bool `json:"value"`
	}
	path := c.sessionPath("/element/" + string(el) + "/" + prop)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Value, nil
}

func (c *Client) Click(ctx context.Context, el redeem.Element) error {
	path := c.sessionPath("/element/" + string(el) + "/click")
	return c.do(ctx, http.MethodPost, path, map[string]any{}, nil)
}

// PageText returns the visible text of the document body.
func (c *Client) PageText(ctx context.Context) (string, error) {
	body := map[string]string{"using": "tag name", "value": "body"}
	var found struct {
		Value map[string]string `json:"value"`
	}
	if err := c.do(ctx, http.MethodPost, c.sessionPath("/element"), body, &found); err != nil {
		return "", err
	}
	id := found.Value[w3cElementKey]
	if id == "" {
		return "", fmt.Errorf("page has no body element")
	}

	var text struct {
		Value string `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, c.sessionPath("/element/"+id+"/text"), nil, &text); err != nil {
		return "", err
	}
	return text.Value, nil
}

// DumpSession exports the session's cookies as JSON.
func (c *Client) DumpSession(ctx context.Context) ([]byte, error) {
	var resp struct {
		Value []json.RawMessage `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, c.sessionPath("/cookie"), nil, &resp); err != nil {
		return nil, err
	}
	return json.Marshal(resp.Value)
}

// RestoreSession re-adds previously dumped cookies. Cookies the browser
// rejects (expired, wrong domain for the current page) are skipped.
func (c *Client) RestoreSession(ctx context.Context, state []byte) error {
	var cookies []json.RawMessage
	if err := json.Unmarshal(state, &cookies); err != nil {
		return fmt.Errorf("decode session state: %w", err)
	}
	for _, cookie := range cookies {
		body := map[string]json.RawMessage{"cookie": cookie}
		if err := c.do(ctx, http.MethodPost, c.sessionPath("/cookie"), body, nil); err != nil {
			continue
		}
	}
	return nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, c.sessionPath(""), nil, nil)
}

func (c *Client) sessionPath(suffix string) string {
	return "/session/" + c.sessionID + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var werr struct {
			Value struct {
				Error   string `json:"error"`
				Message string `json:"message"`
			} `json:"value"`
		}
		_ = json.Unmarshal(data, &werr)
		if werr.Value.Error != "" {
			return fmt.Errorf("%s %s: %s: %s", method, path, werr.Value.Error, werr.Value.Message)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
