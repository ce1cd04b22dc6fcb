package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestClampLimit(t *testing.T) {
	require.Equal(t, DefaultPageSize, clampLimit(0))
	require.Equal(t, DefaultPageSize, clampLimit(-3))
	require.Equal(t, 7, clampLimit(7))
	require.Equal(t, MaxPageSize, clampLimit(MaxPageSize+1))
}

func TestTokenCodec(t *testing.T) {
	require.Equal(t, 42, decodeToken(encodeToken(42)))
	require.Equal(t, 0, decodeToken(""))
	require.Equal(t, 0, decodeToken("garbage"))
	require.Equal(t, 0, decodeToken("offset:not-a-number"))
	require.Equal(t, 0, decodeToken("offset:-5"))
}

func TestSortIndexOrdering(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	entries := []IndexEntry{
		{SessionID: "b", UpdatedAt: base},
		{SessionID: "a", UpdatedAt: base},
		{SessionID: "c", UpdatedAt: base.Add(time.Second)},
	}
	sortIndex(entries)
	require.Equal(t, "c", entries[0].SessionID)
	require.Equal(t, "a", entries[1].SessionID, "ties break by session id ascending")
	require.Equal(t, "b", entries[2].SessionID)
}

// TestPagingProperty verifies that walking all pages yields every entry
// exactly once, in (updatedAt desc, sessionId asc) order.
func TestPagingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("pages partition the ordered set", prop.ForAll(
		func(seconds []int, limit int) bool {
			entries := make([]IndexEntry, len(seconds))
			for i, s := range seconds {
				entries[i] = IndexEntry{
					SessionID: fmt.Sprintf("s-%03d", i),
					UpdatedAt: base.Add(time.Duration(s) * time.Second),
				}
			}
			sortIndex(entries)

			limit = clampLimit(limit)
			var walked []string
			offset := 0
			for {
				end := offset + limit
				if end > len(entries) {
					end = len(entries)
				}
				for _, e := range entries[offset:end] {
					walked = append(walked, e.SessionID)
				}
				if end == len(entries) {
					break
				}
				offset = decodeToken(encodeToken(end))
			}

			if len(walked) != len(entries) {
				return false
			}
			seen := make(map[string]struct{}, len(walked))
			for i, id := range walked {
				if _, dup := seen[id]; dup {
					return false
				}
				seen[id] = struct{}{}
				if i > 0 {
					prev, cur := entries[i-1], entries[i]
					if prev.UpdatedAt.Before(cur.UpdatedAt) {
						return false
					}
					if prev.UpdatedAt.Equal(cur.UpdatedAt) && prev.SessionID > cur.SessionID {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}
