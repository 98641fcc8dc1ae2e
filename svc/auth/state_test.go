package auth

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/scanauth/pkg/logger"
	"github.com/dmitrymomot/scanauth/pkg/metrics"
	"github.com/dmitrymomot/scanauth/pkg/statemachine"
)

func TestTransitionTable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := &Manager{logger: logger.Nop(), metrics: metrics.Nop{}}

	allowed := map[State][]Event{
		StateAnonymous:     {EventStart, EventSignedIn},
		StateInitializing:  {EventRecovered, EventRecoveryFailed},
		StateAuthenticated: {EventSignedIn, EventTokenRefreshed, EventSignOut},
		StateSigningOut:    {EventCleanedUp},
	}
	events := []Event{EventStart, EventRecovered, EventRecoveryFailed, EventSignedIn, EventTokenRefreshed, EventSignOut, EventCleanedUp}

	for state, ok := range allowed {
		for _, event := range events {
			machine := statemachine.MustNew(state, statemachine.WithTransitions(transitions))
			_, err := machine.Fire(ctx, event)
			if slices.Contains(ok, event) {
				assert.NoError(t, err, "%s --%s-->", state, event)
			} else {
				assert.True(t, statemachine.IsNoTransitionAvailableError(err), "%s --%s--> should be rejected", state, event)
			}
		}
	}

	machine := m.newMachine()
	assert.Equal(t, StateAnonymous, machine.Current())
}

func TestInitializingIsNotReentered(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := (&Manager{logger: logger.Nop(), metrics: metrics.Nop{}}).newMachine()

	for _, e := range []Event{EventStart, EventRecoveryFailed, EventSignedIn, EventSignOut, EventCleanedUp} {
		_, err := m.Fire(ctx, e)
		require.NoError(t, err, e)
	}
	// Back in anonymous; start is still in the table but Manager.Start guards it.
	assert.Equal(t, StateAnonymous, m.Current())
}

func TestConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		cfg := Config{}.withDefaults()
		assert.Equal(t, DefaultConfig(), cfg)
		assert.NoError(t, cfg.validate())
		assert.Equal(t, 30*time.Second, cfg.StartupTimeout)
		assert.Equal(t, 3*time.Second, cfg.SignOutTimeout)
		assert.Equal(t, PolicyFailOpen, cfg.UnreachablePolicy)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()
		cfg := DefaultConfig()
		cfg.RevalidateMaxInterval = time.Millisecond
		cfg.UnreachablePolicy = "sometimes"
		err := cfg.validate()
		require.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), "sometimes")
	})
}
