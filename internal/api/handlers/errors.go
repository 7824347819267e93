package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"
	"github.com/vedasoham/dtdp/internal/core/orchestrator"
	"github.com/vedasoham/dtdp/internal/core/raceguard"
	"github.com/vedasoham/dtdp/internal/core/session"
	"github.com/vedasoham/dtdp/internal/transport"
)

// statusError maps core and transport errors onto HTTP statuses.
func statusError(err error) error {
	var (
		verr *orchestrator.ValidationError
		rej  *transport.Rejection
		terr *transport.TransportError
	)
	switch {
	case errors.As(err, &verr):
		return huma.Error422UnprocessableEntity(verr.Error())
	case errors.As(err, &rej):
		return huma.Error409Conflict(rej.Message)
	case errors.Is(err, orchestrator.ErrNoAction), errors.Is(err, raceguard.ErrStale):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, session.ErrNoProject):
		return huma.Error400BadRequest(err.Error())
	case errors.As(err, &terr):
		return huma.Error502BadGateway(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout(err.Error())
	}
	log.Error().Err(err).Msg("unhandled api error")
	return huma.Error500InternalServerError("internal error")
}
