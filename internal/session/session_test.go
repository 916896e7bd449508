package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCreatesIdleSession(t *testing.T) {
	m := NewManager()

	s := m.Get(42)
	require.NotNil(t, s)
	assert.Equal(t, int64(42), s.UserID)
	assert.Equal(t, StepIdle, s.Step)
	assert.False(t, s.InProgress())

	// Same pointer on repeated access.
	assert.Same(t, s, m.Get(42))
}

func TestResetClearsScopedFields(t *testing.T) {
	m := NewManager()
	s := m.Get(7)
	s.Step = StepInvoiceNumber
	s.ChatID = -100
	s.PaymentMethod = "stc"
	s.InvoiceNumber = "INV1"
	s.ExternalAccountID = "TV1"
	s.FreeTrial = true

	s.Reset()

	assert.Equal(t, int64(7), s.UserID)
	assert.Equal(t, StepIdle, s.Step)
	assert.Zero(t, s.ChatID)
	assert.Empty(t, s.PaymentMethod)
	assert.Empty(t, s.InvoiceNumber)
	assert.Empty(t, s.ExternalAccountID)
	assert.False(t, s.FreeTrial)
}

func TestClearRemovesSession(t *testing.T) {
	m := NewManager()
	s := m.Get(7)
	s.Step = StepSelectGroup
	assert.True(t, m.InProgress(7))

	m.Clear(7)
	assert.False(t, m.InProgress(7))
	assert.NotSame(t, s, m.Get(7))
}

func TestConcurrentAccess(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			s := m.Get(id % 4)
			_ = s.InProgress()
			m.InProgress(id % 4)
		}(int64(i))
	}
	wg.Wait()
}
