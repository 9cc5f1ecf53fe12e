package config

import (
	"testing"
	"time"
)

func TestDialogConfigNormalisation(t *testing.T) {
	tests := []struct {
		name       string
		store      string
		engine     string
		wantStore  string
		wantEngine string
	}{
		{name: "defaults", wantStore: StateStoreMemory, wantEngine: ExpressionEngineGoja},
		{name: "bolt and cel", store: "Bolt", engine: " CEL ", wantStore: StateStoreBolt, wantEngine: ExpressionEngineCEL},
		{name: "gorm", store: "gorm", engine: "goja", wantStore: StateStoreGorm, wantEngine: ExpressionEngineGoja},
		{name: "unknown falls back", store: "redis", engine: "lua", wantStore: StateStoreMemory, wantEngine: ExpressionEngineGoja},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DialogConfig{StateStore: tt.store, ExpressionEngine: tt.engine}
			if got := cfg.StateBackend(); got != tt.wantStore {
				t.Errorf("StateBackend() = %q, want %q", got, tt.wantStore)
			}
			if got := cfg.Engine(); got != tt.wantEngine {
				t.Errorf("Engine() = %q, want %q", got, tt.wantEngine)
			}
		})
	}
}

func TestDialogConfigDurations(t *testing.T) {
	cfg := DialogConfig{
		ExpressionTimeoutMs:   250,
		ConversationTTLMin:    30,
		HTTPRequestTimeoutSec: 10,
		CBResetTimeoutSec:     60,
	}
	if got := cfg.ExpressionTimeout(); got != 250*time.Millisecond {
		t.Errorf("ExpressionTimeout() = %v", got)
	}
	if got := cfg.ConversationTTL(); got != 30*time.Minute {
		t.Errorf("ConversationTTL() = %v", got)
	}
	if got := cfg.HTTPRequestTimeout(); got != 10*time.Second {
		t.Errorf("HTTPRequestTimeout() = %v", got)
	}
	if got := cfg.BreakerResetTimeout(); got != time.Minute {
		t.Errorf("BreakerResetTimeout() = %v", got)
	}
}
