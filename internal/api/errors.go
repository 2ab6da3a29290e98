package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/pagelift/internal/extract"
	"github.com/jmylchreest/pagelift/internal/schema"
	"github.com/jmylchreest/pagelift/internal/schemagen"
)

// mapError translates pipeline failures to HTTP status errors. Routing never
// fails, so only generation, extraction, and validation appear here.
func mapError(err error) error {
	var genErr *schemagen.Error
	if errors.As(err, &genErr) {
		return huma.Error422UnprocessableEntity("could not derive an extraction schema from the query", genErr)
	}

	var valErr *schema.ValidationError
	if errors.As(err, &valErr) {
		details := make([]error, 0, len(valErr.Fields))
		for _, fe := range valErr.Fields {
			details = append(details, &huma.ErrorDetail{
				Message:  fe.Message,
				Location: fe.Path,
			})
		}
		return huma.Error422UnprocessableEntity("extracted data failed validation", details...)
	}

	var extErr *extract.Error
	if errors.As(err, &extErr) {
		switch extErr.Kind {
		case extract.KindEmpty:
			return huma.Error404NotFound("no extractable data found on the page", extErr)
		default:
			if errors.Is(extErr.Err, context.DeadlineExceeded) {
				return huma.Error504GatewayTimeout("extraction exceeded the request budget", extErr)
			}
			return huma.Error502BadGateway("could not fetch or extract from the page", extErr)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return huma.Error504GatewayTimeout("extraction exceeded the request budget", err)
	}
	return huma.Error500InternalServerError("extraction failed", err)
}
