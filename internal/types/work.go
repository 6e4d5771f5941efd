package types

import (
	"fmt"
	"net/url"
)

// WorkItem is one unit of work. Identity is the canonical ID; Order is the
// first-seen position and drives output ordering.
type WorkItem struct {
	// ID is the canonical identifier (URL or record id).
	ID string

	// Raw is the identifier as it appeared in the seed list or page.
	Raw string

	// Order is the enumeration index.
	Order int

	// Depth is the expansion level the item was discovered at.
	Depth int

	// Parent is the identifier of the page this item was discovered on.
	Parent string

	// Invalid is set when the raw identifier could not be normalised. The
	// driver records such items as permanent failures without fetching.
	Invalid error
}

// Host returns the host part of a URL identifier, or "" for record ids.
func (w WorkItem) Host() string {
	u, err := url.Parse(w.ID)
	if err != nil {
		return ""
	}
	return u.Host
}

func (w WorkItem) String() string {
	return fmt.Sprintf("#%d %s", w.Order, w.ID)
}

// FetchKind tags a FetchResult.
type FetchKind int

const (
	FetchSuccess FetchKind = iota
	FetchTransient
	FetchPermanent
)

func (k FetchKind) String() string {
	switch k {
	case FetchSuccess:
		return "success"
	case FetchTransient:
		return "transient"
	case FetchPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// FetchResult is the tagged outcome of fetching one identifier. Content is set
// only for FetchSuccess; Err only for the failure kinds.
type FetchResult struct {
	Kind     FetchKind
	Content  *Content
	Err      error
	Attempts int
}

// OK reports whether the fetch succeeded.
func (r FetchResult) OK() bool { return r.Kind == FetchSuccess }

// OutcomeKind tags an extraction Outcome.
type OutcomeKind int

const (
	OutcomeExtracted OutcomeKind = iota
	OutcomeNotRelevant
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeExtracted:
		return "extracted"
	case OutcomeNotRelevant:
		return "not_relevant"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is what a Field Extractor produces. NotRelevant outcomes still carry
// the best-effort record; Failed outcomes may carry a partial one.
type Outcome struct {
	Kind   OutcomeKind
	Record *Record
	Err    error
}

// Extracted wraps a relevant record.
func Extracted(rec *Record) Outcome {
	return Outcome{Kind: OutcomeExtracted, Record: rec}
}

// NotRelevant wraps a record rejected by a gate.
func NotRelevant(rec *Record, reason string) Outcome {
	rec.Reject(reason)
	return Outcome{Kind: OutcomeNotRelevant, Record: rec}
}

// ExtractionFailed builds a Failed outcome.
func ExtractionFailed(id, reason string, err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: &ExtractionError{ID: id, Reason: reason, Err: err}}
}
