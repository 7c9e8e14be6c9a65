// path: internal/store/codec.go

package store

import (
	"strconv"
	"strings"
)

func joinURLs(urls []string) string {
	return strings.Join(urls, "\x00")
}

func splitURLs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\x00")
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func splitInts(s string) []int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
