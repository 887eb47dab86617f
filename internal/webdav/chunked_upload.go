package webdav

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/imroc/req/v3"
)

// PutChunk uploads one chunk of a larger transfer. The chunk URI follows the
// ownCloud legacy chunking convention: "<path>-chunking-<transferId>-
// <chunkCount>-<chunkIndex>", so the server can reassemble chunks sharing a
// transferId once the final chunk (index == chunkCount-1) lands.
func (c *Client) PutChunk(ctx context.Context, path, transferID string, chunkIndex, chunkCount int, body io.Reader, size int64, ifMatchETag string, onProgress ProgressFunc) (*req.Response, error) {
	uri := fmt.Sprintf("%s-chunking-%s-%d-%d", c.URI(path), transferID, chunkCount, chunkIndex)

	r := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetHeader("Content-Length", strconv.FormatInt(size, 10)).
		SetBody(newProgressReader(body, size, onProgress))

	if ifMatchETag != "" {
		r.SetHeader(HeaderIfMatch, `"`+ifMatchETag+`"`)
	}

	return r.Put(uri)
}
