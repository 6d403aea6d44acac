// ABOUTME: Contract test for the hvac.v1.Control service surface
// ABOUTME: Fails when a method is removed or renamed so hvac-admin keeps working

package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// expectedMethods is the hvac.v1.Control API that ControlClient calls.
var expectedMethods = []string{
	"GetState",
	"QueryStates",
	"ListAgents",
	"SendMessage",
	"Broadcast",
	"Correlate",
	"CrossCheck",
	"Dashboard",
}

func TestControlServiceSurface(t *testing.T) {
	assert.Equal(t, ControlServiceName, controlServiceDesc.ServiceName)
	assert.Empty(t, controlServiceDesc.Streams)

	actual := make(map[string]bool, len(controlServiceDesc.Methods))
	for _, m := range controlServiceDesc.Methods {
		assert.False(t, actual[m.MethodName], "method %s registered twice", m.MethodName)
		actual[m.MethodName] = true
		assert.NotNil(t, m.Handler, "method %s has no handler", m.MethodName)
	}
	for _, name := range expectedMethods {
		assert.True(t, actual[name], "method %s should exist", name)
	}
	assert.Len(t, actual, len(expectedMethods), "unexpected extra methods")
}
