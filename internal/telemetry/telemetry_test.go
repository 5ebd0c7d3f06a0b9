package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)

	r.ObserveSolve("optimal", 20*time.Millisecond, 12)
	r.ObserveSolve("optimal", 5*time.Millisecond, 3)
	r.ObserveSolve("infeasible", time.Millisecond, 1)
	r.ObserveSettlement(3, 4, 1500, 20)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.solves.WithLabelValues("optimal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.solves.WithLabelValues("infeasible")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.settled))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.submitted))
	assert.Equal(t, 1500.0, testutil.ToFloat64(r.cashflow))
	assert.Equal(t, 20.0, testutil.ToFloat64(r.loan))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["settlement_solve_duration_seconds"])
	assert.True(t, names["settlement_settle_rate"])
}

func TestRecorderRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewRecorder(reg)
	require.NoError(t, err)
	_, err = NewRecorder(reg)
	assert.Error(t, err)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveSolve("optimal", time.Second, 1)
		r.ObserveSettlement(1, 1, 1, 1)
	})
}
