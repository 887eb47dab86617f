package propagate

import (
	"fmt"

	"github.com/davsync/propagator/internal/webdav"
)

// Classify maps a transport outcome to a Status per the classifier table:
// transport-OK with a 2xx or the ignored status is Success; transport-OK
// with any other status is Normal; DNS/auth/proxy/connect/timeout failures
// are Fatal; a redirect seen by the transport is Soft; anything else at the
// transport level is Normal. There is no separate precondition-failed or
// retry-signal category: an HTTP 412 arrives as a transport-OK response and
// is Normal.
//
// ignoreHTTPCode is the per-call exemption (e.g. 404 on DELETE, 405 on
// MKCOL); pass 0 when there is none.
func Classify(o webdav.Outcome, ignoreHTTPCode int) (Status, string) {
	if o.TransportOK {
		if isSuccessStatus(o.StatusCode) || o.StatusCode == ignoreHTTPCode {
			return StatusSuccess, ""
		}
		return StatusNormal, o.Reason
	}

	if ignoreHTTPCode != 0 {
		if code, ok := webdav.ParseNumericCode(o.Reason); ok && code == ignoreHTTPCode {
			return StatusSuccess, ""
		}
	}

	switch {
	case o.DNSFailure, o.AuthFailure, o.ProxyAuthFailure, o.ConnectFailure, o.Timeout:
		return StatusFatal, o.Reason
	case o.RedirectSeen:
		return StatusSoft, o.Reason
	default:
		return StatusNormal, o.Reason
	}
}

func isSuccessStatus(code int) bool {
	return code >= 200 && code < 300
}

// ErrAbort is returned by a job that observed the run-wide abort flag.
var ErrAbort = fmt.Errorf("propagate: aborted")
