package webdav

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
)

// AbortFunc is polled between chunks of a streamed body; returning true
// cooperatively cancels the copy at the next chunk boundary.
type AbortFunc func() bool

const downloadCopyChunk = 64 * 1024

// ErrAborted is returned when the caller's AbortFunc signals cancellation.
var ErrAborted = fmt.Errorf("download aborted")

// DownloadResult carries the response metadata a caller needs after a
// successful (or partially successful) streamed download.
type DownloadResult struct {
	ETag       string
	FileID     string
	StatusCode int
}

// Download issues GET for path, optionally resuming via a Range header, and
// streams the (optionally gzip-decoded) body into dst, checking abort
// between chunks. Once a response has arrived it returns the response
// metadata even when streaming the body fails, so the caller can decide
// whether a partial temp file should be kept; a request that gets no
// response at all returns a nil result.
func (c *Client) Download(ctx context.Context, path string, rangeFrom int64, dst io.Writer, abort AbortFunc, onProgress ProgressFunc) (*DownloadResult, error) {
	c.http.DisableAutoDecode()
	req := c.http.R().
		SetContext(ctx).
		SetHeader(HeaderAcceptEncoding, "gzip").
		SetHeader(HeaderAcceptRanges, "bytes")

	if rangeFrom > 0 {
		req = req.SetHeader(HeaderRange, fmt.Sprintf("bytes=%d-", rangeFrom))
	}

	resp, err := req.Get(c.URI(path))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &DownloadResult{
		StatusCode: resp.StatusCode,
		ETag:       ETag(resp.Header.Get(HeaderETag)),
		FileID:     resp.Header.Get(HeaderOCFileID),
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, nil
	}

	var body io.Reader = resp.Body
	if resp.Header.Get(HeaderContentEncoding) == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return result, fmt.Errorf("gzip body: %w", err)
		}
		defer gz.Close()
		body = gz
	}

	total := resp.ContentLength + rangeFrom
	pr := newProgressReader(body, total, onProgress)

	buf := make([]byte, downloadCopyChunk)
	for {
		if abort != nil && abort() {
			return result, ErrAborted
		}
		n, rerr := pr.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return result, fmt.Errorf("write temp file: %w", werr)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return result, fmt.Errorf("read response body: %w", rerr)
		}
	}

	return result, nil
}
