package logger

import "testing"

func TestLogger_BasicLevels(t *testing.T) {
	l := New("debug")
	if l == nil {
		t.Fatalf("logger nil")
	}
	l.Debug("dbg", "k", 1)
	l.Info("info")
	l.Warn("warn")
	l.Error("err")
}

func TestLogger_NopDiscards(t *testing.T) {
	l := NewNop()
	l.Info("never seen", "k", "v")
	l.Error("never seen either")
}
