package handlers

import (
	"errors"
	"net/http"

	"auction-marketplace/internal/api/dto"
	"auction-marketplace/internal/domain"

	"github.com/labstack/echo/v4"
)

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrAuctionNotFound), errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidListing),
		errors.Is(err, domain.ErrInvalidUser),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrCategoryUnknown):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrInvalidToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// OutcomeStatus maps an arbitration outcome to its HTTP status.
func OutcomeStatus(o domain.Outcome) int {
	switch o {
	case domain.OutcomeAccepted:
		return http.StatusCreated
	case domain.OutcomeNotFound:
		return http.StatusNotFound
	case domain.OutcomeTooLow:
		return http.StatusUnprocessableEntity
	case domain.OutcomeClosed:
		return http.StatusConflict
	case domain.OutcomeBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func jsonError(c echo.Context, status int, msg string) error {
	return c.JSON(status, dto.ErrorResponse{Error: msg})
}

// fail writes err with its mapped status. Internal errors are not echoed to
// the client.
func fail(c echo.Context, err error) error {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		return jsonError(c, status, "internal error")
	}
	return jsonError(c, status, err.Error())
}
