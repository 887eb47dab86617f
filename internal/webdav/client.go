// Package webdav implements the HTTP/WebDAV transport surface the
// propagation engine drives: chunked resumable uploads, range-resumable
// downloads, and the handful of DAV methods simple ops need.
package webdav

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/davsync/propagator/internal/version"
)

const (
	HeaderRange           = "Range"
	HeaderAcceptRanges    = "Accept-Ranges"
	HeaderAcceptEncoding  = "Accept-Encoding"
	HeaderContentEncoding = "Content-Encoding"
	HeaderETag            = "ETag"
	HeaderIfMatch         = "If-Match"
	HeaderOCFileID        = "OC-FileId"
	HeaderOCTotalLength   = "OC-Total-Length"
	HeaderOCChunkOffset   = "OC-Chunk-Offset"
)

// Client is a thin WebDAV transport wrapper around req.Client. It carries no
// propagation-engine state; RunContext owns exactly one of these per run.
type Client struct {
	http    *req.Client
	baseURL string
}

// Option configures a Client at construction time.
type Option func(*req.Client)

// WithTimeout sets a per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *req.Client) {
		c.SetTimeout(d)
	}
}

// WithInsecureSkipVerify disables TLS verification, for test servers only.
func WithInsecureSkipVerify() Option {
	return func(c *req.Client) {
		c.EnableInsecureSkipVerify()
	}
}

// WithBasicAuth attaches HTTP basic auth credentials to every request.
func WithBasicAuth(username, password string) Option {
	return func(c *req.Client) {
		c.SetCommonBasicAuth(username, password)
	}
}

// New creates a Client rooted at baseURL. Credential/session setup (auth
// headers, proxy, client certs) is the caller's responsibility and is
// applied by passing additional Options.
func New(baseURL string, opts ...Option) *Client {
	client := req.C().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetUserAgent("davsync/" + version.Version).
		SetTimeout(30 * time.Second)

	for _, opt := range opts {
		opt(client)
	}

	return &Client{http: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// URI builds the absolute request URI for a sync-root-relative path,
// percent-encoding each path segment individually so slashes survive.
func (c *Client) URI(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.baseURL + "/" + strings.Join(segments, "/")
}

// Head issues HEAD and returns the response for ETag/OC-FileId extraction.
func (c *Client) Head(ctx context.Context, path string) (*req.Response, error) {
	return c.http.R().SetContext(ctx).Head(c.URI(path))
}

// Delete issues DELETE. Callers apply the "404 is success" idempotency rule.
func (c *Client) Delete(ctx context.Context, path string) (*req.Response, error) {
	return c.http.R().SetContext(ctx).Delete(c.URI(path))
}

// Mkcol issues MKCOL. Callers apply the "405 is success" idempotency rule.
func (c *Client) Mkcol(ctx context.Context, path string) (*req.Response, error) {
	return c.http.R().SetContext(ctx).Send("MKCOL", c.URI(path))
}

// Move issues MOVE from one sync-root-relative path to another.
func (c *Client) Move(ctx context.Context, fromPath, toPath string) (*req.Response, error) {
	return c.http.R().
		SetContext(ctx).
		SetHeader("Destination", c.URI(toPath)).
		SetHeader("Overwrite", "T").
		Send("MOVE", c.URI(fromPath))
}

// PropatchLastModified sets DAV:lastmodified to a UNIX-seconds ASCII decimal.
func (c *Client) PropatchLastModified(ctx context.Context, path string, modtime int64) (*req.Response, error) {
	body := fmt.Sprintf(`<?xml version="1.0"?>
<d:propertyupdate xmlns:d="DAV:" xmlns:oc="http://owncloud.org/ns">
  <d:set>
    <d:prop>
      <d:lastmodified>%d</d:lastmodified>
    </d:prop>
  </d:set>
</d:propertyupdate>`, modtime)

	return c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/xml; charset=utf-8").
		SetBody(body).
		Send("PROPPATCH", c.URI(path))
}

// ETag strips the surrounding double quotes from a raw ETag header value.
func ETag(raw string) string {
	return strings.Trim(raw, `"`)
}
