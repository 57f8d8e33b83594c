package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/mixtape/mixtape/internal/events"
)

type recordingReporter struct {
	total, offset int64
	desc          string
	starts        int
	updates       []int64
}

func (r *recordingReporter) Start(total, offset int64, description string) {
	r.starts++
	r.total, r.offset, r.desc = total, offset, description
}
func (r *recordingReporter) Update(current int64) { r.updates = append(r.updates, current) }
func (r *recordingReporter) Finish()              {}
func (r *recordingReporter) Error(err error)      {}

func TestFollow(t *testing.T) {
	feed := events.NewFeed()
	rec := &recordingReporter{}
	done := make(chan struct{})
	go func() {
		Follow(feed, rec, "Song A")
		close(done)
	}()

	feed.Publish(events.NewProgress(100, 1000))
	feed.Finish(events.Outcome{})
	<-done

	if rec.starts != 1 {
		t.Fatalf("Start called %d times", rec.starts)
	}
	if rec.total != 1000 || rec.offset != 100 || rec.desc != "Song A" {
		t.Errorf("Start(%d, %d, %q)", rec.total, rec.offset, rec.desc)
	}
}

func TestFollowIndeterminate(t *testing.T) {
	feed := events.NewFeed()
	rec := &recordingReporter{}
	feed.Publish(events.NewProgress(0, 0))
	feed.Finish(events.Outcome{})

	Follow(feed, rec, "x")
	if rec.total != -1 {
		t.Errorf("total = %d, want -1 for unknown size", rec.total)
	}
}

func TestCLIProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewCLIProgress(&buf)
	p.Start(1000, 250, "Song A")
	p.Update(500)
	p.Update(1000)
	p.Finish()
	if !strings.Contains(buf.String(), "Song A") {
		t.Errorf("output %q does not mention the description", buf.String())
	}

	buf.Reset()
	p = NewCLIProgress(&buf)
	p.Start(-1, 0, "stream")
	p.Error(errors.New("connection reset"))
	if !strings.Contains(buf.String(), "Error: connection reset") {
		t.Errorf("output %q missing error", buf.String())
	}
}

func TestShortLocator(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/home/user/MixTape/downloads/Song A.mp3", "…/downloads/Song A.mp3"},
		{"s3://bucket/music/Song A.mp3", "…/music/Song A.mp3"},
		{"Song A.mp3", "Song A.mp3"},
	}
	for _, tt := range tests {
		if got := ShortLocator(tt.in); got != tt.want {
			t.Errorf("ShortLocator(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSizeLabel(t *testing.T) {
	if got := sizeLabel(0); got != "size unknown" {
		t.Errorf("sizeLabel(0) = %q", got)
	}
	if got := sizeLabel(3 * 1024 * 1024); got != "3.0 MiB" {
		t.Errorf("sizeLabel(3MiB) = %q", got)
	}
}
