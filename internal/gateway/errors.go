// ABOUTME: Maps domain error kinds onto HTTP status codes and gRPC codes
// ABOUTME: Integrator step failures also report the failing workflow step

package gateway

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/2389/hvac-mesh/internal/agent"
	"github.com/2389/hvac-mesh/internal/correlation"
	"github.com/2389/hvac-mesh/internal/integrator"
	"github.com/2389/hvac-mesh/internal/state"
	"github.com/2389/hvac-mesh/internal/store"
)

// errBadRequest marks malformed client input.
var errBadRequest = errors.New("bad request")

// httpStatus returns the status code for err.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, correlation.ErrSameDevice),
		errors.Is(err, agent.ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(err, state.ErrNotFound),
		errors.Is(err, agent.ErrAgentNotFound):
		return http.StatusNotFound
	case errors.Is(err, state.ErrPersistenceUnavailable),
		errors.Is(err, agent.ErrNoAgentsAvailable),
		errors.Is(err, agent.ErrInboxClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, state.ErrSerialization),
		errors.Is(err, state.ErrInvalidRecord),
		errors.Is(err, integrator.ErrNoTranscript):
		return http.StatusUnprocessableEntity
	case errors.Is(err, state.ErrLockContention),
		errors.Is(err, state.ErrRoutingMismatch),
		errors.Is(err, store.ErrConstraint):
		return http.StatusConflict
	case errors.Is(err, agent.ErrInboxFull),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// grpcError converts err into a status error.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var code codes.Code
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, correlation.ErrSameDevice),
		errors.Is(err, agent.ErrUnknownKind),
		errors.Is(err, state.ErrInvalidRecord),
		errors.Is(err, integrator.ErrNoTranscript):
		code = codes.InvalidArgument
	case errors.Is(err, state.ErrNotFound),
		errors.Is(err, agent.ErrAgentNotFound):
		code = codes.NotFound
	case errors.Is(err, state.ErrPersistenceUnavailable),
		errors.Is(err, agent.ErrNoAgentsAvailable),
		errors.Is(err, agent.ErrInboxClosed):
		code = codes.Unavailable
	case errors.Is(err, state.ErrSerialization):
		code = codes.DataLoss
	case errors.Is(err, state.ErrLockContention),
		errors.Is(err, state.ErrRoutingMismatch):
		code = codes.Aborted
	case errors.Is(err, store.ErrConstraint):
		code = codes.FailedPrecondition
	case errors.Is(err, agent.ErrInboxFull),
		errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// errorBody is the JSON error response.
type errorBody struct {
	Error    string `json:"error"`
	Workflow string `json:"workflow,omitempty"`
	Step     string `json:"step,omitempty"`
}

func newErrorBody(err error) errorBody {
	body := errorBody{Error: err.Error()}
	var se *integrator.StepError
	if errors.As(err, &se) {
		body.Workflow, body.Step = se.Workflow, se.Step
	}
	return body
}
