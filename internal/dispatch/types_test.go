package dispatch

import (
	"testing"
	"time"
)

func TestShiftClockHour(t *testing.T) {
	tests := []struct {
		shift Shift
		want  int
	}{
		{ShiftMorning, 8},
		{ShiftAfternoon, 13},
		{ShiftEvening, 18},
		{Shift(""), 8},
		{Shift("garbage"), 8},
	}

	for _, tt := range tests {
		if got := tt.shift.ClockHour(); got != tt.want {
			t.Errorf("Shift(%q).ClockHour() = %d, want %d", tt.shift, got, tt.want)
		}
	}
}

func TestShiftAt(t *testing.T) {
	date := time.Date(2025, 12, 24, 0, 0, 0, 0, time.Local)

	got := ShiftEvening.At(date)

	want := time.Date(2025, 12, 24, 18, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("ShiftEvening.At(%v) = %v, want %v", date, got, want)
	}
}

func TestBatchPhaseTerminal(t *testing.T) {
	tests := []struct {
		phase BatchPhase
		want  bool
	}{
		{PhaseStarting, false},
		{PhaseParsing, false},
		{PhaseResolving, false},
		{PhaseSubmitting, false},
		{PhaseComplete, true},
		{PhaseFailed, true},
		{PhaseCancelled, true},
	}

	for _, tt := range tests {
		if got := tt.phase.Terminal(); got != tt.want {
			t.Errorf("BatchPhase(%q).Terminal() = %v, want %v", tt.phase, got, tt.want)
		}
	}
}

func TestBatchProgressPercent(t *testing.T) {
	tests := []struct {
		name     string
		progress BatchProgress
		want     int
	}{
		{
			name:     "nothing processed",
			progress: BatchProgress{Phase: PhaseSubmitting, TotalLines: 10},
			want:     0,
		},
		{
			name:     "half processed",
			progress: BatchProgress{Phase: PhaseSubmitting, TotalLines: 10, Processed: 5},
			want:     50,
		},
		{
			name:     "rounds down",
			progress: BatchProgress{Phase: PhaseSubmitting, TotalLines: 9, Processed: 3},
			want:     33,
		},
		{
			name:     "terminal is always 100",
			progress: BatchProgress{Phase: PhaseFailed, TotalLines: 10, Processed: 2},
			want:     100,
		},
		{
			name:     "no lines yet",
			progress: BatchProgress{Phase: PhaseStarting},
			want:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.progress.Percent(); got != tt.want {
				t.Errorf("Percent() = %d, want %d", got, tt.want)
			}
		})
	}
}
