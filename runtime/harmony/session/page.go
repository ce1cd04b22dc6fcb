package session

import (
	"sort"
	"strconv"
	"strings"
)

// Paging bounds.
const (
	// DefaultPageSize applies when PageRequest.Limit is zero.
	DefaultPageSize = 50
	// MaxPageSize caps PageRequest.Limit.
	MaxPageSize = 500
)

const tokenPrefix = "offset:"

// clampLimit normalizes a requested page size into [1, MaxPageSize].
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// encodeToken renders the opaque continuation token for a zero-based offset.
func encodeToken(offset int) string {
	return tokenPrefix + strconv.Itoa(offset)
}

// decodeToken parses a continuation token. Unparseable tokens degrade to
// offset 0 rather than failing the request.
func decodeToken(token string) int {
	if !strings.HasPrefix(token, tokenPrefix) {
		return 0
	}
	offset, err := strconv.Atoi(strings.TrimPrefix(token, tokenPrefix))
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}

// sortIndex orders entries by updatedAt descending, tie-broken by session id
// ordinal ascending.
func sortIndex(entries []IndexEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].UpdatedAt.Equal(entries[j].UpdatedAt) {
			return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
		}
		return entries[i].SessionID < entries[j].SessionID
	})
}
