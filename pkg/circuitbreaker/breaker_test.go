package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := New(3, time.Minute)

	for i := 0; i < 2; i++ {
		b.RecordFailure("stripe")
		assert.True(t, b.Allow("stripe"))
	}

	b.RecordFailure("stripe")
	assert.Equal(t, StateOpen, b.State("stripe"))
	assert.False(t, b.Allow("stripe"))

	// other keys are unaffected
	assert.True(t, b.Allow("paypal"))
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := New(2, time.Minute)

	b.RecordFailure("stripe")
	b.RecordSuccess("stripe")
	b.RecordFailure("stripe")

	assert.Equal(t, StateClosed, b.State("stripe"))
}

func TestBreaker_HalfOpenTrial(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	b := New(1, 30*time.Second)
	b.now = func() time.Time { return now }

	var transitions []string
	b.OnTransition(func(key string, from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	b.RecordFailure("paypal")
	assert.False(t, b.Allow("paypal"))

	now = now.Add(31 * time.Second)
	assert.True(t, b.Allow("paypal"))
	assert.Equal(t, StateHalfOpen, b.State("paypal"))
	assert.False(t, b.Allow("paypal"), "only one trial call while half-open")

	b.RecordFailure("paypal")
	assert.Equal(t, StateOpen, b.State("paypal"))

	now = now.Add(31 * time.Second)
	assert.True(t, b.Allow("paypal"))
	b.RecordSuccess("paypal")
	assert.Equal(t, StateClosed, b.State("paypal"))

	assert.Equal(t, []string{
		"closed->open",
		"open->half_open",
		"half_open->open",
		"open->half_open",
		"half_open->closed",
	}, transitions)
}
