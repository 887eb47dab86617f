package webdav

import (
	"context"
	"errors"
	"net"
	"net/url"
	"regexp"
	"strconv"

	"github.com/imroc/req/v3"
)

// Outcome normalizes a completed (or failed) request into the shape the
// propagation engine's error classifier reasons about: did the transport
// itself succeed, and if so, what HTTP status came back.
type Outcome struct {
	// TransportOK is true when a response was received at all, regardless
	// of its HTTP status.
	TransportOK bool
	StatusCode  int
	Reason      string
	// DNSFailure, AuthFailure, ProxyAuthFailure, ConnectFailure, Timeout
	// classify a transport-level failure when TransportOK is false.
	DNSFailure       bool
	AuthFailure      bool
	ProxyAuthFailure bool
	ConnectFailure   bool
	Timeout          bool
	// RedirectSeen is true when the transport followed (or refused to
	// follow) a redirect before failing.
	RedirectSeen bool
}

var numericCodeRe = regexp.MustCompile(`\b([1-5][0-9]{2})\b`)

// NewOutcome builds an Outcome from a completed req.Response and/or a
// transport error, mirroring owncloudpropagator.cpp's updateErrorFromSession.
func NewOutcome(resp *req.Response, err error) Outcome {
	if err == nil && resp != nil {
		o := Outcome{TransportOK: true, StatusCode: resp.StatusCode}
		if resp.Response != nil {
			o.Reason = resp.Status
		}
		return o
	}

	o := Outcome{TransportOK: false}
	if err == nil {
		return o
	}
	o.Reason = err.Error()

	if errors.Is(err, context.DeadlineExceeded) {
		o.Timeout = true
		return o
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		o.Timeout = true
		return o
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		o.DNSFailure = true
		return o
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			o.Timeout = true
			return o
		}
		if _, redirect := urlErr.Err.(interface{ Redirect() }); redirect {
			o.RedirectSeen = true
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		o.ConnectFailure = true
		return o
	}

	return o
}

// ParseNumericCode extracts a 3-digit HTTP-status-shaped number embedded in
// a generic transport error message, for the "ignoreHttpCode matched a code
// parsed from the error string" branch of the classifier.
func ParseNumericCode(msg string) (int, bool) {
	m := numericCodeRe.FindStringSubmatch(msg)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
