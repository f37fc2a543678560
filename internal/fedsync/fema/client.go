package fema

import (
	"context"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sells-group/disaster-recon/internal/fetcher"
)

// DefaultBaseURL is the OpenFEMA API root.
const DefaultBaseURL = "https://www.fema.gov/api/open"

// Query is a filtered request against one dataset.
type Query struct {
	Dataset Dataset
	Filter  Predicate
}

// Source is the remote dataset API. Count reports how many rows match q;
// Page returns the JSON array of rows [skip, skip+top).
type Source interface {
	Count(ctx context.Context, q Query) (int, error)
	Page(ctx context.Context, q Query, skip, top int) (io.ReadCloser, error)
}

// Client is the OpenFEMA Source.
type Client struct {
	baseURL string
	fetcher fetcher.Fetcher
}

// NewClient creates an OpenFEMA client rooted at baseURL.
func NewClient(baseURL string, f fetcher.Fetcher) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), fetcher: f}
}

type countResponse struct {
	Metadata struct {
		Count int `json:"count"`
	} `json:"metadata"`
}

// Count issues the $inlinecount count request for q.
func (c *Client) Count(ctx context.Context, q Query) (int, error) {
	u := c.CountURL(q)
	body, err := c.fetcher.Download(ctx, u)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	resp, err := fetcher.DecodeJSONObject[countResponse](body)
	if err != nil {
		return 0, eris.Wrapf(err, "fema: decode %s count", q.Dataset.Name)
	}
	return resp.Metadata.Count, nil
}

// Page fetches one page of q.
func (c *Client) Page(ctx context.Context, q Query, skip, top int) (io.ReadCloser, error) {
	return c.fetcher.Download(ctx, c.PageURL(q, skip, top))
}

// CountURL builds the count request URL for q.
func (c *Client) CountURL(q Query) string {
	return c.build(q.Dataset, [][2]string{
		{"$inlinecount", "allpages"},
		{"$select", "id"},
		{"$filter", q.Filter.String()},
		{"$top", "1"},
	})
}

// PageURL builds the URL of the page starting at skip.
func (c *Client) PageURL(q Query, skip, top int) string {
	return c.build(q.Dataset, [][2]string{
		{"$select", strings.Join(q.Dataset.Fields, ",")},
		{"$filter", q.Filter.String()},
		{"$skip", strconv.Itoa(skip)},
		{"$top", strconv.Itoa(top)},
		{"$format", "jsona"},
		{"$metadata", "off"},
	})
}

// build keeps parameter order stable; url.Values would sort it.
func (c *Client) build(ds Dataset, params [][2]string) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString(ds.Path)
	for i, p := range params {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(p[0])
		b.WriteByte('=')
		b.WriteString(strings.ReplaceAll(url.QueryEscape(p[1]), "+", "%20"))
	}
	return b.String()
}
