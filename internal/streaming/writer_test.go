package streaming

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDefaultTimeoutWriterConfig(t *testing.T) {
	config := DefaultTimeoutWriterConfig()

	if config.WriteTimeout != 30*time.Second {
		t.Errorf("Expected WriteTimeout=30s, got %v", config.WriteTimeout)
	}
	if config.MaxDuration != 0 {
		t.Errorf("Expected MaxDuration=0 (unlimited), got %v", config.MaxDuration)
	}
	if config.ChunkSize != 256*1024 {
		t.Errorf("Expected ChunkSize=256KB, got %d", config.ChunkSize)
	}
}

func TestTimeoutWriterWrite(t *testing.T) {
	w := httptest.NewRecorder()
	tw := NewTimeoutWriter(context.Background(), w, DefaultTimeoutWriterConfig())
	defer tw.Close()

	data := []byte("test data")
	n, err := tw.Write(data)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("Expected to write %d bytes, wrote %d", len(data), n)
	}
	if written, _ := tw.Stats(); written != int64(len(data)) {
		t.Errorf("Expected bytes written=%d, got %d", len(data), written)
	}
	if w.Body.String() != "test data" {
		t.Errorf("Unexpected body %q", w.Body.String())
	}
}

type countingWriter struct {
	*httptest.ResponseRecorder
	writes int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.writes++
	return c.ResponseRecorder.Write(p)
}

func TestTimeoutWriterChunks(t *testing.T) {
	cw := &countingWriter{ResponseRecorder: httptest.NewRecorder()}
	config := DefaultTimeoutWriterConfig()
	config.ChunkSize = 10

	tw := NewTimeoutWriter(context.Background(), cw, config)
	defer tw.Close()

	n, err := tw.Write(make([]byte, 35))
	if err != nil || n != 35 {
		t.Fatalf("Write = (%d, %v), want (35, nil)", n, err)
	}
	if cw.writes != 4 {
		t.Errorf("Expected 4 chunk writes, got %d", cw.writes)
	}
}

func TestTimeoutWriterContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tw := NewTimeoutWriter(ctx, httptest.NewRecorder(), DefaultTimeoutWriterConfig())
	defer tw.Close()

	cancel()

	if _, err := tw.Write([]byte("late")); !errors.Is(err, ErrClientGone) {
		t.Errorf("Expected ErrClientGone, got %v", err)
	}
}

func TestTimeoutWriterMaxDuration(t *testing.T) {
	config := DefaultTimeoutWriterConfig()
	config.MaxDuration = time.Nanosecond

	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), config)
	defer tw.Close()
	time.Sleep(time.Millisecond)

	if _, err := tw.Write([]byte("slow")); !errors.Is(err, ErrWriteTimeout) {
		t.Errorf("Expected ErrWriteTimeout, got %v", err)
	}
}

func TestTimeoutWriterCloseIdempotent(t *testing.T) {
	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), DefaultTimeoutWriterConfig())

	if err := tw.Close(); err != nil {
		t.Fatalf("First Close failed: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Second Close failed: %v", err)
	}
	if _, err := tw.Write([]byte("x")); !errors.Is(err, ErrStreamCanceled) {
		t.Errorf("Expected ErrStreamCanceled after Close, got %v", err)
	}
}

func TestTimeoutWriterOnProgress(t *testing.T) {
	var calls int
	config := DefaultTimeoutWriterConfig()
	config.OnProgress = func(int64, time.Duration) { calls++ }

	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), config)
	defer tw.Close()

	if _, err := tw.Write(make([]byte, 3<<20)); err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 progress callbacks, got %d", calls)
	}
}

func TestTimeoutWriterOverRealConnection(t *testing.T) {
	payload := make([]byte, 512*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := NewTimeoutWriter(r.Context(), w, DefaultTimeoutWriterConfig())
		defer tw.Close()
		if _, err := tw.Write(payload); err != nil {
			t.Errorf("Write failed: %v", err)
		}
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	buf := make([]byte, len(payload)+1)
	total := 0
	for {
		n, err := resp.Body.Read(buf[total:])
		total += n
		if err != nil {
			break
		}
	}
	if total != len(payload) {
		t.Errorf("Expected %d bytes, got %d", len(payload), total)
	}
}
