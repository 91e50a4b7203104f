/*
Package rest implements generic.RecordStore against a PostgREST-style HTTP API.

PURPOSE:
  The hosted database exposes every table under <base>/rest/v1/<table>.
  This client is the one reusable connection the snapshot and import
  stages share; it holds the service key and knows how to translate
  filters and upserts into query parameters and headers.

WIRE FORMAT:
  Read:    GET  /rest/v1/<table>?<filter>&order=<key>.asc&limit=N&offset=M
  Upsert:  POST /rest/v1/<table>?on_conflict=<keys>
           Prefer: resolution=merge-duplicates,return=minimal

  Filters:
    Eq("email", "a@b")           email=eq.a@b
    Eq("site_id", nil)           site_id=is.null
    Or(Eq(a, x), Eq(b, y))       or=(a.eq.x,b.eq.y)
    And(f1, f2) at top level     one parameter per child

PAGING:
  Pages are requested in key order so that consecutive pages neither
  repeat nor skip rows. The key is the table's entry in the order map,
  or DefaultOrderColumn.

AUTHENTICATION:
  Every request carries the key twice, as the "apikey" header and as a
  bearer token. The key is read from the environment by the caller and
  never logged.

ERRORS:
  Any network failure or non-2xx status becomes a *generic.TransportError
  carrying the table, the operation and a truncated response body.

SEE ALSO:
  - generic/store.go: Interface definitions
  - store/sqlite/sqlite.go: Local rehearsal store
*/
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MagicManBen/CheckLoops/generic"
)

// DefaultPageSize is the number of rows requested per GET.
const DefaultPageSize = 1000

// DefaultOrderColumn is the paging key of tables without an explicit one.
const DefaultOrderColumn = "id"

// Client talks to one hosted project.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	pageSize int
	order    map[string]string
	logger   *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithPageSize sets the page size for reads.
func WithPageSize(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.pageSize = n
		}
	}
}

// WithOrder sets the paging key per table. A key may list several
// columns separated by commas.
func WithOrder(keys map[string]string) Option {
	return func(cl *Client) {
		for table, key := range keys {
			cl.order[table] = key
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// New creates a client for the project at baseURL (e.g. https://xyz.supabase.co).
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 30 * time.Second},
		pageSize: DefaultPageSize,
		order:    map[string]string{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// RECORD STORE (generic.RecordStore interface)
// =============================================================================

// Select pages through table until a short page is returned.
func (c *Client) Select(ctx context.Context, table string, filter generic.Filter) ([]generic.Row, error) {
	params := Query(filter)
	params.Set("order", c.orderFor(table))
	var rows []generic.Row
	for offset := 0; ; offset += c.pageSize {
		page := url.Values{}
		for k, v := range params {
			page[k] = v
		}
		page.Set("limit", fmt.Sprint(c.pageSize))
		page.Set("offset", fmt.Sprint(offset))

		body, err := c.do(ctx, http.MethodGet, table, page, nil, "")
		if err != nil {
			return nil, &generic.TransportError{Table: table, Op: "select", Err: err}
		}
		var batch []generic.Row
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&batch); err != nil {
			return nil, &generic.TransportError{Table: table, Op: "select", Err: fmt.Errorf("decode response: %w", err)}
		}
		rows = append(rows, batch...)
		if len(batch) < c.pageSize {
			break
		}
	}
	c.logger.Debug("rest: select", zap.String("table", table), zap.Stringer("filter", filter), zap.Int("rows", len(rows)))
	return rows, nil
}

// orderFor renders the paging key of table as a PostgREST order parameter.
func (c *Client) orderFor(table string) string {
	key := c.order[table]
	if key == "" {
		key = DefaultOrderColumn
	}
	var cols []string
	for _, col := range strings.Split(key, ",") {
		if col = strings.TrimSpace(col); col != "" {
			cols = append(cols, col+".asc")
		}
	}
	return strings.Join(cols, ",")
}

// Upsert posts rows in one request, merging on conflictKeys.
func (c *Client) Upsert(ctx context.Context, table string, rows []generic.Row, conflictKeys []string) error {
	if len(rows) == 0 {
		return nil
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return &generic.TransportError{Table: table, Op: "upsert", Err: fmt.Errorf("encode rows: %w", err)}
	}
	params := url.Values{}
	prefer := "return=minimal"
	if len(conflictKeys) > 0 {
		params.Set("on_conflict", strings.Join(conflictKeys, ","))
		prefer = "resolution=merge-duplicates," + prefer
	}
	if _, err := c.do(ctx, http.MethodPost, table, params, payload, prefer); err != nil {
		return &generic.TransportError{Table: table, Op: "upsert", Err: err}
	}
	c.logger.Debug("rest: upsert", zap.String("table", table), zap.Int("rows", len(rows)))
	return nil
}

func (c *Client) do(ctx context.Context, method, table string, params url.Values, payload []byte, prefer string) ([]byte, error) {
	target := c.baseURL + "/rest/v1/" + url.PathEscape(table)
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// =============================================================================
// FILTER ENCODING
// =============================================================================

// Query translates a filter into PostgREST query parameters.
func Query(f generic.Filter) url.Values {
	params := url.Values{}
	switch {
	case len(f.Or) > 0:
		params.Add("or", "("+joinTerms(f.Or)+")")
	case len(f.And) > 0:
		for _, child := range f.And {
			for k, vs := range Query(child) {
				for _, v := range vs {
					params.Add(k, v)
				}
			}
		}
	case f.Column != "":
		params.Add(f.Column, operand(f.Value))
	}
	return params
}

// operand renders the right-hand side of a top-level parameter.
func operand(v any) string {
	if v == nil {
		return "is.null"
	}
	return "eq." + fmt.Sprint(v)
}

// term renders a filter nested inside or(...) / and(...).
func term(f generic.Filter) string {
	switch {
	case len(f.Or) > 0:
		return "or(" + joinTerms(f.Or) + ")"
	case len(f.And) > 0:
		return "and(" + joinTerms(f.And) + ")"
	case f.Value == nil:
		return f.Column + ".is.null"
	}
	return f.Column + ".eq." + quoteValue(fmt.Sprint(f.Value))
}

func joinTerms(fs []generic.Filter) string {
	terms := make([]string, 0, len(fs))
	for _, f := range fs {
		if f.IsZero() {
			continue
		}
		terms = append(terms, term(f))
	}
	return strings.Join(terms, ",")
}

// quoteValue wraps values containing reserved characters in double quotes.
func quoteValue(s string) string {
	if !strings.ContainsAny(s, ",.:()\" ") {
		return s
	}
	return `"` + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `"`, `\"`) + `"`
}
