// Package sseutil provides shared SSE line handling for the streaming
// translator and the aggregator.
package sseutil

import (
	"bufio"
	"io"
	"strings"
)

const (
	// initialBuf sizes the scanner for typical event payloads.
	initialBuf = 64 * 1024
	// maxBuf bounds a single data line; reasoning deltas can get large but a
	// line past this is a broken upstream.
	maxBuf = 10 * 1024 * 1024
)

// NewScanner returns a line scanner sized for SSE payloads.
func NewScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, initialBuf), maxBuf)
	return scanner
}

// DataPayload extracts the payload of a data line, tolerating both the
// "data: x" and "data:x" spellings and trailing carriage returns. Event-name
// lines, comments, and blank lines report ok=false.
func DataPayload(line string) (string, bool) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	payload := strings.TrimSpace(line[len("data:"):])
	if payload == "" {
		return "", false
	}
	return payload, true
}
