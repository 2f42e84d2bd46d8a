package stealth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestApply(t *testing.T) {
	t.Parallel()

	t.Run("Full Persona", func(t *testing.T) {
		core, observedLogs := observer.New(zap.DebugLevel)
		tasks := Apply("(() => {})();", DefaultPersona, zap.New(core))

		// user agent, script, timezone, locale, headers
		assert.Len(t, tasks, 5)
		logs := observedLogs.All()
		assert.Len(t, logs, 1)
		assert.Equal(t, "Applying browser stealth persona", logs[0].Message)
		assert.Equal(t, int64(len("(() => {})();")), logs[0].ContextMap()["scriptBytes"])
	})

	t.Run("Empty Script", func(t *testing.T) {
		core, observedLogs := observer.New(zap.DebugLevel)
		tasks := Apply("", Persona{}, zap.New(core))

		assert.Empty(t, tasks)
		assert.Equal(t, 1, observedLogs.FilterLevelExact(zap.WarnLevel).Len())
	})

	t.Run("Nil Logger", func(t *testing.T) {
		assert.NotPanics(t, func() {
			Apply("1;", Persona{Locale: "de-DE"}, nil)
		})
	})
}

func TestAcceptLanguage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   []string
		want string
	}{
		{nil, ""},
		{[]string{"en-US"}, "en-US"},
		{[]string{"en-US", "en"}, "en-US,en;q=0.9"},
		{[]string{"de-DE", "", "en"}, "de-DE,en;q=0.8"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, acceptLanguage(tt.in), "%v", tt.in)
	}
}
