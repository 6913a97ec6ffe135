package scheduler

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextAligned(t *testing.T) {
	s := New(Options{Interval: 5 * time.Minute, AlignToStart: true}, zerolog.Nop())

	now := time.Date(2025, 3, 1, 12, 2, 30, 0, time.UTC)
	next := s.Next(now)
	want := time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("Next(%s) = %s, want %s", now, next, want)
	}
}

func TestNextOnBoundaryAdvances(t *testing.T) {
	s := New(Options{Interval: time.Minute, AlignToStart: true}, zerolog.Nop())

	now := time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC)
	next := s.Next(now)
	if !next.After(now) {
		t.Fatalf("Next on an exact boundary must advance, got %s", next)
	}
}

func TestNextUnaligned(t *testing.T) {
	s := New(Options{Interval: time.Minute}, zerolog.Nop())

	now := time.Date(2025, 3, 1, 12, 2, 30, 0, time.UTC)
	if got := s.Next(now); !got.Equal(now.Add(time.Minute)) {
		t.Fatalf("unaligned Next must be now+interval, got %s", got)
	}
}
