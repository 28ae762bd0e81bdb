package streaming

import (
	"errors"
	"strconv"
	"strings"
)

// DefaultChunkSize bounds the response when a range has no end offset.
const DefaultChunkSize int64 = 1_000_000

var (
	// ErrRangeRequired is returned for a missing or malformed Range header.
	ErrRangeRequired = errors.New("requires range header")

	// ErrRangeNotSatisfiable is returned when the range starts at or past
	// the end of the resource.
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
)

// ByteRange is an inclusive byte window within a resource of TotalSize bytes.
type ByteRange struct {
	Start     int64
	End       int64
	TotalSize int64
}

// Length returns the number of bytes in the window.
func (br ByteRange) Length() int64 {
	return br.End - br.Start + 1
}

// ContentRange formats the Content-Range header value for a 206 response.
func (br ByteRange) ContentRange() string {
	return "bytes " + strconv.FormatInt(br.Start, 10) + "-" +
		strconv.FormatInt(br.End, 10) + "/" + strconv.FormatInt(br.TotalSize, 10)
}

// UnsatisfiedRange formats the Content-Range header value for a 416 response.
func UnsatisfiedRange(totalSize int64) string {
	return "bytes */" + strconv.FormatInt(totalSize, 10)
}

// ParseRange resolves a Range header against a resource size.
func ParseRange(header string, totalSize int64) (ByteRange, error) {
	if header == "" {
		return ByteRange{}, ErrRangeRequired
	}

	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return ByteRange{}, ErrRangeRequired
	}

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return ByteRange{}, ErrRangeRequired
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	// Suffix ranges ("bytes=-500") are not supported.
	start, err := parseOffset(startStr)
	if err != nil {
		return ByteRange{}, ErrRangeRequired
	}

	if start >= totalSize {
		return ByteRange{}, ErrRangeNotSatisfiable
	}

	var end int64
	if endStr == "" {
		end = min(start+DefaultChunkSize-1, totalSize-1)
	} else {
		end, err = parseOffset(endStr)
		if err != nil || end < start {
			return ByteRange{}, ErrRangeRequired
		}
		end = min(end, totalSize-1)
	}

	return ByteRange{Start: start, End: end, TotalSize: totalSize}, nil
}

func parseOffset(s string) (int64, error) {
	if s == "" || s[0] == '+' || s[0] == '-' {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseInt(s, 10, 64)
}
