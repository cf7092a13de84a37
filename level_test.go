package qlog

import "testing"

func TestLevelOrdering(t *testing.T) {
	ordered := []Level{
		LevelTraceL3, LevelTraceL2, LevelTraceL1, LevelDebug, LevelInfo,
		LevelWarning, LevelError, LevelCritical, LevelBacktrace, LevelNone,
	}
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1] >= ordered[i] {
			t.Fatalf("%v is not below %v", ordered[i-1], ordered[i])
		}
	}
}

func TestLevelStrings(t *testing.T) {
	if LevelWarning.String() != "WARNING" || LevelWarning.ShortString() != "W" {
		t.Fatal("warning level strings wrong")
	}
	if LevelBacktrace.String() != "BACKTRACE" || LevelBacktrace.ShortString() != "BT" {
		t.Fatal("backtrace level strings wrong")
	}
	if Level(200).String() != "Level(200)" {
		t.Fatal("out of range level string wrong")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"DEBUG", LevelDebug, true},
		{"debug", LevelDebug, true},
		{" Info ", LevelInfo, true},
		{"T3", LevelTraceL3, true},
		{"trace_l1", LevelTraceL1, true},
		{"none", LevelNone, true},
		{"bogus", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.ok != (err == nil) {
			t.Fatalf("ParseLevel(%q) err=%v", tt.in, err)
		}
		if err == nil && got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
