package detect

import "github.com/guestledger/dupguard/internal/types"

// Matcher reports whether candidate rec should be offered for query q.
// Matchers registered per source feed narrow the exact-key match with
// vendor-specific rules; they never add candidates. The cache stores the
// unfiltered store result, so queries differing only in source share cache
// entries and the matcher runs on the way out.
type Matcher func(rec types.TransactionRecord, q types.DuplicateQuery) bool

// RegisterMatcher installs m for the given source feed, replacing any
// previous matcher for it. Register during startup; not safe to call
// concurrently with Check.
func (d *Detector) RegisterMatcher(source string, m Matcher) {
	if d.matchers == nil {
		d.matchers = make(map[string]Matcher)
	}
	d.matchers[source] = m
}

func (d *Detector) matcherFor(source string) Matcher {
	if source == "" || d.matchers == nil {
		return nil
	}
	return d.matchers[source]
}

// applyMatcher filters set through the matcher registered for the query's
// source, if any
func (d *Detector) applyMatcher(q types.DuplicateQuery, set types.CandidateSet) types.CandidateSet {
	m := d.matcherFor(q.Source)
	if m == nil {
		return set
	}

	out := types.CandidateSet{}
	for _, rec := range set {
		if m(rec, q) {
			out = append(out, rec)
		}
	}
	return out
}

// MatchExactAmount accepts only candidates whose amount lands on the same
// cent as the query, for feeds whose extraction is exact and wants no
// epsilon slop.
func MatchExactAmount(rec types.TransactionRecord, q types.DuplicateQuery) bool {
	return types.Cents(rec.Amount) == types.Cents(q.Amount)
}

// MatchSameSource accepts only candidates ingested from the query's own
// feed, for vendors that deduplicate strictly within themselves.
func MatchSameSource(rec types.TransactionRecord, q types.DuplicateQuery) bool {
	return rec.Source == q.Source
}
