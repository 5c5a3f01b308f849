package util

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := NewLogger("test")
	l.SetZapLogger(zap.New(core))

	l.Info("hidden")
	l.Warn("shown", 1)
	if logs.Len() != 1 {
		t.Fatal("default level should hide info, got", logs.Len(), "entries")
	}
	if got := logs.All()[0].Message; got != "shown 1" {
		t.Error("wrong message got=", got, "exp=", "shown 1")
	}

	old := l.SetLogLevel(LevelInfo)
	if old != LogLevelDefault {
		t.Error("wrong old level", old)
	}
	l.Infof("value=%d", 7)
	if logs.Len() != 2 {
		t.Fatal("info should be shown after raising the level")
	}
	if got := logs.All()[1].Message; got != "value=7" {
		t.Error("wrong message got=", got)
	}

	l.SetLogLevel(LevelError)
	l.Warn("hidden again")
	if logs.Len() != 2 {
		t.Error("warn should be hidden at error level")
	}
}

func TestBadLogLevel(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for invalid level")
		}
	}()
	NewLogger("test").SetLogLevel(levelMax + 1)
}
