package telemetry

import "testing"

// New returns a shared instance, so tests assert deltas rather than absolutes.
func TestRecordOracleCallAggregates(t *testing.T) {
	tele := New(true)

	tele.mu.Lock()
	basePrompt, baseOut := tele.promptTokens, tele.outputTokens
	tele.mu.Unlock()

	tele.RecordOracleCall(10, 5)
	tele.RecordOracleCall(3, 2)

	tele.mu.Lock()
	gotPrompt := tele.promptTokens - basePrompt
	gotOut := tele.outputTokens - baseOut
	tele.mu.Unlock()

	if gotPrompt != 13 || gotOut != 7 {
		t.Errorf("aggregated tokens = %d/%d, want 13/7", gotPrompt, gotOut)
	}
}

func TestRecordRunAggregates(t *testing.T) {
	tele := New(true)

	tele.mu.Lock()
	baseRuns, baseAnalyzed := tele.totalRuns, tele.totalAnalyzed
	tele.mu.Unlock()

	tele.RecordRun(true, 10, 4, 2, 0)
	tele.RecordRun(false, 0, 0, 0, 0)

	tele.mu.Lock()
	gotRuns := tele.totalRuns - baseRuns
	gotAnalyzed := tele.totalAnalyzed - baseAnalyzed
	tele.mu.Unlock()

	if gotRuns != 2 || gotAnalyzed != 4 {
		t.Errorf("aggregates = %d runs / %d analyzed, want 2/4", gotRuns, gotAnalyzed)
	}
}
