package streaming

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		total   int64
		want    ByteRange
		wantErr error
	}{
		{
			name:   "explicit window",
			header: "bytes=0-999999",
			total:  5_000_000,
			want:   ByteRange{Start: 0, End: 999_999, TotalSize: 5_000_000},
		},
		{
			name:   "open end uses default chunk",
			header: "bytes=500-",
			total:  2_000_000,
			want:   ByteRange{Start: 500, End: 1_000_499, TotalSize: 2_000_000},
		},
		{
			name:   "open end clamped to size",
			header: "bytes=100-",
			total:  1000,
			want:   ByteRange{Start: 100, End: 999, TotalSize: 1000},
		},
		{
			name:   "end past size clamped",
			header: "bytes=10-5000",
			total:  100,
			want:   ByteRange{Start: 10, End: 99, TotalSize: 100},
		},
		{
			name:   "single byte",
			header: "bytes=7-7",
			total:  8,
			want:   ByteRange{Start: 7, End: 7, TotalSize: 8},
		},
		{
			name:   "whitespace tolerated",
			header: " bytes=1 - 2",
			total:  10,
			want:   ByteRange{Start: 1, End: 2, TotalSize: 10},
		},
		{name: "missing header", header: "", total: 10, wantErr: ErrRangeRequired},
		{name: "wrong unit", header: "items=0-1", total: 10, wantErr: ErrRangeRequired},
		{name: "suffix range unsupported", header: "bytes=-500", total: 1000, wantErr: ErrRangeRequired},
		{name: "no dash", header: "bytes=5", total: 10, wantErr: ErrRangeRequired},
		{name: "non-numeric start", header: "bytes=abc-", total: 10, wantErr: ErrRangeRequired},
		{name: "non-numeric end", header: "bytes=0-xyz", total: 10, wantErr: ErrRangeRequired},
		{name: "end before start", header: "bytes=5-1", total: 10, wantErr: ErrRangeRequired},
		{name: "multiple ranges", header: "bytes=0-1,5-6", total: 10, wantErr: ErrRangeRequired},
		{name: "signed start", header: "bytes=+5-", total: 10, wantErr: ErrRangeRequired},
		{name: "start at size", header: "bytes=10-", total: 10, wantErr: ErrRangeNotSatisfiable},
		{name: "start past size", header: "bytes=11-20", total: 10, wantErr: ErrRangeNotSatisfiable},
		{name: "empty resource", header: "bytes=0-", total: 0, wantErr: ErrRangeNotSatisfiable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseRange(tt.header, tt.total)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseRange(%q, %d) error = %v, want %v", tt.header, tt.total, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRange(%q, %d) unexpected error: %v", tt.header, tt.total, err)
			}
			if got != tt.want {
				t.Errorf("ParseRange(%q, %d) = %+v, want %+v", tt.header, tt.total, got, tt.want)
			}
		})
	}
}

func TestParseRange_ValidWindowsUnchanged(t *testing.T) {
	totals := []int64{1, 2, 17, 1000, 1_000_001}
	for _, total := range totals {
		offsets := []int64{0, 1, total / 2, total - 1}
		for _, start := range offsets {
			for _, end := range offsets {
				if start < 0 || start > end || end >= total {
					continue
				}
				header := fmt.Sprintf("bytes=%d-%d", start, end)
				got, err := ParseRange(header, total)
				if err != nil {
					t.Fatalf("ParseRange(%q, %d) unexpected error: %v", header, total, err)
				}
				want := ByteRange{Start: start, End: end, TotalSize: total}
				if got != want {
					t.Errorf("ParseRange(%q, %d) = %+v, want %+v", header, total, got, want)
				}
			}
		}
	}
}

func TestParseRange_StartPastEndNotSatisfiable(t *testing.T) {
	for _, total := range []int64{0, 1, 100, 5_000_000} {
		for _, start := range []int64{total, total + 1, total * 2} {
			_, err := ParseRange(fmt.Sprintf("bytes=%d-", start), total)
			if !errors.Is(err, ErrRangeNotSatisfiable) {
				t.Errorf("start=%d total=%d: expected ErrRangeNotSatisfiable, got %v", start, total, err)
			}
		}
	}
}

func TestByteRangeHeaders(t *testing.T) {
	br := ByteRange{Start: 0, End: 999_999, TotalSize: 5_000_000}
	if got := br.ContentRange(); got != "bytes 0-999999/5000000" {
		t.Errorf("ContentRange() = %q", got)
	}
	if got := br.Length(); got != 1_000_000 {
		t.Errorf("Length() = %d, want 1000000", got)
	}
	if got := UnsatisfiedRange(5_000_000); got != "bytes */5000000" {
		t.Errorf("UnsatisfiedRange() = %q", got)
	}
}
