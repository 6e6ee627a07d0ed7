package cache

import (
	"fmt"
	"sort"
	"strings"
)

// Key builds a cache key by joining a logical namespace with sorted,
// stringified parameters, so equivalent parameter sets collide to the same
// key regardless of the order callers supply them in.
//
//	Key("home-feed", map[string]any{"limit": 10}) == "home-feed-limit:10"
func Key(namespace string, params map[string]any) string {
	if len(params) == 0 {
		return namespace
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(namespace)
	for _, name := range names {
		fmt.Fprintf(&b, "-%s:%v", name, params[name])
	}
	return b.String()
}

// InNamespace reports whether key was built from the given logical
// namespace. Useful for the key predicates PatchCollections takes.
func InNamespace(key, namespace string) bool {
	return key == namespace || strings.HasPrefix(key, namespace+"-")
}
