// Package bridge is a broker.Gateway that talks HTTP/JSON to a bridge
// process sitting next to the trading terminal. Field names and enum values
// follow the terminal's own trade API: side 0 buy / 1 sell, deal entry
// 0 in / 1 out / 2 in-out / 3 out-by, deal reason 0 client ... 5 take-profit.
package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rustyeddy/trademanager/broker"
	"github.com/tidwall/gjson"
)

// RetcodeDone is the only trade server return code counted as a fill. A
// placed but unfilled order (10008) never reaches deal history.
const RetcodeDone = 10009

const defaultTimeout = 5 * time.Second

type Client struct {
	BaseURL string // e.g. http://127.0.0.1:8228
	Token   string
	// TerminalPath is forwarded so one bridge can front several terminals.
	TerminalPath string
	Timeout      time.Duration
	HTTP         *http.Client
}

var _ broker.Gateway = (*Client)(nil)

func NewClient(baseURL, token, terminalPath string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("bridge url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("bridge url %q: want http or https", baseURL)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		BaseURL:      strings.TrimRight(u.String(), "/"),
		Token:        token,
		TerminalPath: terminalPath,
		Timeout:      timeout,
		HTTP:         &http.Client{},
	}, nil
}

// StatusError is a non-2xx answer from the bridge.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bridge %s %s: http %d: %s", e.Method, e.Path, e.Code, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (gjson.Result, error) {
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		b, err := sonic.Marshal(body)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("bridge encode %s: %w", path, err)
		}
		rd = bytes.NewReader(b)
	}

	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.TerminalPath != "" {
		req.Header.Set("X-Terminal-Path", c.TerminalPath)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("bridge %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("bridge %s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode/100 != 2 {
		return gjson.Result{}, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: trimForErr(strings.TrimSpace(string(raw)))}
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("bridge %s %s: bad json (body=%q)", method, path, trimForErr(string(raw)))
	}
	return gjson.ParseBytes(raw), nil
}

func (c *Client) Account(ctx context.Context) (broker.Account, error) {
	r, err := c.do(ctx, http.MethodGet, "/account", nil, nil)
	if err != nil {
		return broker.Account{}, err
	}
	if !r.Get("login").Exists() {
		return broker.Account{}, errors.New("bridge account: missing login")
	}
	return broker.Account{
		ID:       r.Get("login").Int(),
		Currency: r.Get("currency").String(),
		Balance:  r.Get("balance").Float(),
		Equity:   r.Get("equity").Float(),
	}, nil
}

func (c *Client) Tick(ctx context.Context, symbol string) (broker.Tick, error) {
	r, err := c.do(ctx, http.MethodGet, "/ticks/"+url.PathEscape(symbol), nil, nil)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return broker.Tick{}, fmt.Errorf("%s: %w", symbol, broker.ErrNoTick)
	}
	if err != nil {
		return broker.Tick{}, err
	}
	t := broker.Tick{
		Symbol: symbol,
		Bid:    r.Get("bid").Float(),
		Ask:    r.Get("ask").Float(),
		Time:   unixTime(r.Get("time")),
	}
	if t.Bid <= 0 || t.Ask <= 0 {
		return broker.Tick{}, fmt.Errorf("%s: %w", symbol, broker.ErrNoTick)
	}
	return t, nil
}

func (c *Client) Positions(ctx context.Context) ([]broker.Position, error) {
	r, err := c.do(ctx, http.MethodGet, "/positions", nil, nil)
	if err != nil {
		return nil, err
	}
	if !r.IsArray() {
		return nil, errors.New("bridge positions: want a JSON array")
	}
	items := r.Array()
	out := make([]broker.Position, 0, len(items))
	for _, p := range items {
		out = append(out, broker.Position{
			Ticket:     p.Get("ticket").Int(),
			Symbol:     p.Get("symbol").String(),
			Side:       broker.Side(p.Get("type").Int()),
			Volume:     p.Get("volume").Float(),
			OpenPrice:  p.Get("price_open").Float(),
			StopLoss:   p.Get("sl").Float(),
			TakeProfit: p.Get("tp").Float(),
			Magic:      p.Get("magic").Int(),
			Profit:     p.Get("profit").Float(),
			Swap:       p.Get("swap").Float(),
			OpenTime:   unixTime(p.Get("time")),
			Comment:    p.Get("comment").String(),
		})
	}
	return out, nil
}

func (c *Client) Deals(ctx context.Context, positionID int64) ([]broker.Deal, error) {
	q := url.Values{"position": {strconv.FormatInt(positionID, 10)}}
	r, err := c.do(ctx, http.MethodGet, "/deals", q, nil)
	if err != nil {
		return nil, err
	}
	if !r.IsArray() {
		return nil, errors.New("bridge deals: want a JSON array")
	}
	items := r.Array()
	out := make([]broker.Deal, 0, len(items))
	for _, d := range items {
		out = append(out, broker.Deal{
			Ticket:     d.Get("ticket").Int(),
			PositionID: d.Get("position_id").Int(),
			Symbol:     d.Get("symbol").String(),
			Side:       broker.Side(d.Get("type").Int()),
			Entry:      broker.DealEntry(d.Get("entry").Int()),
			Reason:     broker.DealReason(d.Get("reason").Int()),
			Volume:     d.Get("volume").Float(),
			Price:      d.Get("price").Float(),
			Profit:     d.Get("profit").Float(),
			Swap:       d.Get("swap").Float(),
			Commission: d.Get("commission").Float(),
			Magic:      d.Get("magic").Int(),
			Time:       unixTime(d.Get("time")),
		})
	}
	return out, nil
}

type orderBody struct {
	Symbol     string  `json:"symbol"`
	Type       int     `json:"type"`
	Volume     float64 `json:"volume"`
	Price      float64 `json:"price"`
	StopLoss   float64 `json:"sl,omitempty"`
	TakeProfit float64 `json:"tp,omitempty"`
	Deviation  int     `json:"deviation"`
	Magic      int64   `json:"magic"`
	Comment    string  `json:"comment,omitempty"`
}

// deviation is the accepted slippage in points for market requests.
const deviation = 20

func (c *Client) MarketOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	r, err := c.do(ctx, http.MethodPost, "/orders", nil, orderBody{
		Symbol:     req.Symbol,
		Type:       int(req.Side),
		Volume:     req.Volume,
		Price:      req.Price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Deviation:  deviation,
		Magic:      req.Magic,
		Comment:    req.Comment,
	})
	if err != nil {
		return broker.OrderResult{}, err
	}
	return orderResult(r), nil
}

func (c *Client) ClosePosition(ctx context.Context, req broker.CloseRequest) (broker.OrderResult, error) {
	path := "/positions/" + strconv.FormatInt(req.Ticket, 10) + "/close"
	r, err := c.do(ctx, http.MethodPost, path, nil, orderBody{
		Symbol:    req.Symbol,
		Type:      int(req.Side),
		Volume:    req.Volume,
		Price:     req.Price,
		Deviation: deviation,
		Magic:     req.Magic,
		Comment:   req.Comment,
	})
	if err != nil {
		return broker.OrderResult{}, err
	}
	res := orderResult(r)
	if res.Ticket == 0 {
		res.Ticket = req.Ticket
	}
	return res, nil
}

func (c *Client) Close() error {
	if c.HTTP != nil {
		c.HTTP.CloseIdleConnections()
	}
	return nil
}

func orderResult(r gjson.Result) broker.OrderResult {
	code := r.Get("retcode").Int()
	reason := r.Get("comment").String()
	if reason == "" {
		reason = "retcode " + strconv.FormatInt(code, 10)
	}
	return broker.OrderResult{
		Ticket:  r.Get("order").Int(),
		Success: code == RetcodeDone,
		Reason:  reason,
		Price:   r.Get("price").Float(),
		Volume:  r.Get("volume").Float(),
	}
}

// unixTime accepts epoch seconds or an RFC 3339 string.
func unixTime(v gjson.Result) time.Time {
	switch v.Type {
	case gjson.Number:
		return time.Unix(v.Int(), 0).UTC()
	case gjson.String:
		t, err := time.Parse(time.RFC3339Nano, v.String())
		if err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func trimForErr(s string) string {
	const n = 200
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
