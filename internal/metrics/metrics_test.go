package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCountersAppearInScrape(t *testing.T) {
	m := New()
	m.FramesRead.Add(42)
	m.ClipsSaved.Add(3)
	m.ActiveStreams.Add(2)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read scrape body: %v", err)
	}
	out := string(body)

	for _, want := range []string{
		"streamserver_frames_read_total 42",
		"streamserver_clips_saved_total 3",
		"streamserver_active_streams 2",
		"streamserver_encode_errors_total 0",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("scrape missing %q:\n%s", want, out)
		}
	}
}

func TestGaugeDecrement(t *testing.T) {
	m := New()
	m.ActiveSubscribers.Add(3)
	m.ActiveSubscribers.Add(^uint64(0))
	if got := m.ActiveSubscribers.Load(); got != 2 {
		t.Fatalf("subscribers = %d, want 2", got)
	}
}
