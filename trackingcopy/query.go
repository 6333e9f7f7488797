package trackingcopy

import (
	"github.com/vireonet/txcore/internal/logging"
	"github.com/vireonet/txcore/key"
)

var log = logging.For("trackingcopy")

// QueryResultKind discriminates QueryResult's outcome, mirroring spec.md
// §4.3's QueryResult sum type.
type QueryResultKind int

const (
	QuerySuccess QueryResultKind = iota
	QueryValueNotFound
	QueryCircularReference
	QueryDepthLimit
)

func (k QueryResultKind) String() string {
	switch k {
	case QuerySuccess:
		return "Success"
	case QueryValueNotFound:
		return "ValueNotFound"
	case QueryCircularReference:
		return "CircularReference"
	case QueryDepthLimit:
		return "DepthLimit"
	default:
		return "Unknown"
	}
}

// QueryResult is the outcome of TrackingCopy.Query.
type QueryResult struct {
	Kind  QueryResultKind
	Value key.StoredValue
	Path  []string // meaningful iff Kind == QueryValueNotFound
	Seen  key.Key   // meaningful iff Kind == QueryCircularReference
	Depth int        // meaningful iff Kind == QueryDepthLimit
}

// Query starts at k and descends through path, resolving each successive
// name against the named_keys of the account or contract value found at
// the current position (spec.md §4.3). RootNotFound is reported by the
// caller before constructing a TrackingCopy (trie.StateProvider.Checkout
// already returns that as a bool), so it never appears here.
func (tc *TrackingCopy) Query(k key.Key, path []string) QueryResult {
	visited := make(map[string]bool, len(path)+1)
	current := k

	for i, name := range path {
		if i >= tc.DepthLimit {
			log.WithField("limit", tc.DepthLimit).Warn("query aborted: depth limit reached")
			return QueryResult{Kind: QueryDepthLimit, Depth: tc.DepthLimit}
		}
		id := string(current.Bytes())
		if visited[id] {
			log.WithField("key", current.String()).Warn("query aborted: circular named-key reference")
			return QueryResult{Kind: QueryCircularReference, Seen: current}
		}
		visited[id] = true

		val, found, err := tc.value(current)
		if err != nil || !found {
			return QueryResult{Kind: QueryValueNotFound, Path: path[:i+1]}
		}
		named, ok := key.NamedKeysOf(val)
		if !ok {
			return QueryResult{Kind: QueryValueNotFound, Path: path[:i+1]}
		}
		next, ok := named[name]
		if !ok {
			return QueryResult{Kind: QueryValueNotFound, Path: path[:i+1]}
		}
		current = next
	}

	val, found, err := tc.value(current)
	if err != nil || !found {
		return QueryResult{Kind: QueryValueNotFound, Path: path}
	}
	return QueryResult{Kind: QuerySuccess, Value: val}
}
