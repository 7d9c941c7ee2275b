package printing

import "testing"

func TestStageCanTransitionTo(t *testing.T) {
	tests := []struct {
		name   string
		from   Stage
		to     Stage
		want   bool
	}{
		{name: "idle to rendering", from: StageIdle, to: StageRendering, want: true},
		{name: "rendering to printing", from: StageRendering, to: StagePrinting, want: true},
		{name: "rendering to failed", from: StageRendering, to: StageFailed, want: true},
		{name: "printing to complete", from: StagePrinting, to: StageComplete, want: true},
		{name: "printing to failed", from: StagePrinting, to: StageFailed, want: true},
		{name: "no skipping render", from: StageIdle, to: StagePrinting, want: false},
		{name: "no going back", from: StagePrinting, to: StageRendering, want: false},
		{name: "complete is terminal", from: StageComplete, to: StageRendering, want: false},
		{name: "failed is terminal", from: StageFailed, to: StageRendering, want: false},
		{name: "unknown stage goes nowhere", from: Stage("LIMBO"), to: StageRendering, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStageIsTerminal(t *testing.T) {
	for _, s := range []Stage{StageIdle, StageRendering, StagePrinting} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []Stage{StageComplete, StageFailed} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}
