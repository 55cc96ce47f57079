package fetch

import (
	"github.com/joseph-ayodele/datares-tracker/internal/common"
)

// Kind tags a fetch outcome.
type Kind int

const (
	KindSuccess Kind = iota
	KindNotFound
	KindTransient
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	}
	return "unknown"
}

// Result is the tagged outcome of fetching one descriptor. Body is set only
// for KindSuccess; Err is set for every other kind.
type Result struct {
	Kind        Kind
	Body        []byte
	Err         error
	Status      int
	ContentType string
	Attempts    int
	FromCache   bool
}

func Success(body []byte) Result {
	return Result{Kind: KindSuccess, Body: body}
}

// NotFound is a permanent miss (404/410); never retried.
func NotFound(message string, cause error) Result {
	return Result{Kind: KindNotFound, Err: common.PermanentFetchError(message, cause)}
}

// Transient is retried by Retrying until the policy gives up.
func Transient(message string, cause error) Result {
	return Result{Kind: KindTransient, Err: common.TransientFetchError(message, cause)}
}

// Fatal covers malformed URLs and unusable responses; never retried.
func Fatal(message string, cause error) Result {
	return Result{Kind: KindFatal, Err: common.PermanentFetchError(message, cause)}
}

func (r Result) OK() bool {
	return r.Kind == KindSuccess
}
