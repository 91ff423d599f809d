package vulnlib

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindOther Kind = iota
	KindNotFound
	KindRateLimited
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindRateLimited:
		return "RateLimited"
	case KindUnavailable:
		return "Unavailable"
	default:
		return "Other"
	}
}

// Transient reports whether a failure of this kind is worth retrying.
func (k Kind) Transient() bool {
	return k == KindRateLimited || k == KindUnavailable
}

type QueryError struct {
	Kind       Kind
	StatusCode int
	CPE        string
	Err        error
}

func (e *QueryError) Error() string {
	msg := fmt.Sprintf("query %s: %s", e.CPE, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// KindOf classifies err, treating anything unknown as Other.
func KindOf(err error) Kind {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return KindOther
}

func classifyStatus(code int) Kind {
	switch {
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusTooManyRequests, code == http.StatusForbidden:
		// NVD answers 403 once the rolling quota is used up
		return KindRateLimited
	case code >= 500:
		return KindUnavailable
	default:
		return KindOther
	}
}
