package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPolicyHolderDefaultsWithoutFile(t *testing.T) {
	holder, err := NewPolicyHolderFromPaths(zap.NewNop(), t.TempDir())
	require.NoError(t, err)

	policy := holder.Get()
	assert.Equal(t, OutflowCategory, policy.OutflowCategory)
	assert.Equal(t, "0.005", policy.Tolerance().String())
	assert.Equal(t, 365*24*time.Hour, policy.TicketValidity())
	assert.Equal(t, 5*time.Second, policy.LockTimeout)
}

func TestPolicyHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`reconciliation:
  outflowCategory: "Caixa"
  precisionTolerance: 0.001
  ticketValidityDays: 30
  lockTimeout: 2s
  lockTTL: 10s
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reconciliation.yml"), content, 0o600))

	holder, err := NewPolicyHolderFromPaths(zap.NewNop(), dir)
	require.NoError(t, err)

	policy := holder.Get()
	assert.Equal(t, "Caixa", policy.OutflowCategory)
	assert.Equal(t, 30, policy.TicketValidityDays)
	assert.Equal(t, 2*time.Second, policy.LockTimeout)
	assert.Equal(t, 10*time.Second, policy.LockTTL)
}

func TestPolicyHolderRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`reconciliation:
  ticketValidityDays: 0
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reconciliation.yml"), content, 0o600))

	_, err := NewPolicyHolderFromPaths(zap.NewNop(), dir)
	assert.Error(t, err)
}

func TestGetenvHelpers(t *testing.T) {
	t.Setenv("DUESLEDGER_TEST_BOOL", "yes")
	t.Setenv("DUESLEDGER_TEST_INT", "42")
	t.Setenv("DUESLEDGER_TEST_BAD_INT", "x")

	assert.True(t, getenvBool("DUESLEDGER_TEST_BOOL", false))
	assert.Equal(t, 42, getenvInt("DUESLEDGER_TEST_INT", 1))
	assert.Equal(t, 7, getenvInt("DUESLEDGER_TEST_BAD_INT", 7))
}
