package config

import (
	"strings"
	"time"

	"github.com/pitabwire/frame/config"
)

// Conversation state backends.
const (
	StateStoreMemory = "memory"
	StateStoreBolt   = "bolt"
	StateStoreGorm   = "gorm"
)

// Expression engines.
const (
	ExpressionEngineGoja = "goja"
	ExpressionEngineCEL  = "cel"
)

// DialogConfig holds configuration for the dialog service.
type DialogConfig struct {
	config.ConfigurationDefault
	DialogDir             string `envDefault:"./dialogs"               env:"DIALOG_DIR"`
	RootDialog            string `envDefault:"main"                    env:"ROOT_DIALOG"`
	HotReload             bool   `envDefault:"true"                    env:"HOT_RELOAD"`
	ExpressionEngine      string `envDefault:"goja"                    env:"EXPRESSION_ENGINE"`
	ExpressionTimeoutMs   int    `envDefault:"2000"                    env:"EXPRESSION_TIMEOUT_MS"`
	StateStore            string `envDefault:"memory"                  env:"STATE_STORE"`
	StateBoltPath         string `envDefault:"./data/conversations.db" env:"STATE_BOLT_PATH"`
	ConversationTTLMin    int    `envDefault:"30"                      env:"CONVERSATION_TTL_MIN"`
	HTTPRequestTimeoutSec int    `envDefault:"10"                      env:"HTTP_REQUEST_TIMEOUT_SEC"`
	HTTPAllowPrivate      bool   `envDefault:"false"                   env:"HTTP_ALLOW_PRIVATE"`
	CBFailThreshold       int    `envDefault:"5"                       env:"CB_FAILURE_THRESHOLD"`
	CBResetTimeoutSec     int    `envDefault:"60"                      env:"CB_RESET_TIMEOUT_SEC"`
}

// StateBackend returns the normalised state store name.
func (c *DialogConfig) StateBackend() string {
	switch s := strings.ToLower(strings.TrimSpace(c.StateStore)); s {
	case StateStoreBolt, StateStoreGorm:
		return s
	}
	return StateStoreMemory
}

// Engine returns the normalised expression engine name.
func (c *DialogConfig) Engine() string {
	if strings.EqualFold(strings.TrimSpace(c.ExpressionEngine), ExpressionEngineCEL) {
		return ExpressionEngineCEL
	}
	return ExpressionEngineGoja
}

func (c *DialogConfig) ExpressionTimeout() time.Duration {
	return time.Duration(c.ExpressionTimeoutMs) * time.Millisecond
}

func (c *DialogConfig) ConversationTTL() time.Duration {
	return time.Duration(c.ConversationTTLMin) * time.Minute
}

func (c *DialogConfig) HTTPRequestTimeout() time.Duration {
	return time.Duration(c.HTTPRequestTimeoutSec) * time.Second
}

func (c *DialogConfig) BreakerResetTimeout() time.Duration {
	return time.Duration(c.CBResetTimeoutSec) * time.Second
}
