package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentrpc/corerpc/protocol"
)

func TestExtraIsCancelledDefaultsFalse(t *testing.T) {
	var e protocol.Extra
	assert.False(t, e.IsCancelled())
}

func TestExtraIsCancelledReflectsCallback(t *testing.T) {
	e := protocol.Extra{Cancelled: func() bool { return true }}
	assert.True(t, e.IsCancelled())
}

func TestExtraReportProgressIsOptional(t *testing.T) {
	var e protocol.Extra
	assert.NotPanics(t, func() { e.ReportProgress(1, 2, "step") })
}

func TestExtraReportProgressInvokesCallback(t *testing.T) {
	var got []int
	e := protocol.Extra{OnProgress: func(current, total int, message string) {
		got = append(got, current, total)
	}}
	e.ReportProgress(1, 3, "step 1")
	assert.Equal(t, []int{1, 3}, got)
}
