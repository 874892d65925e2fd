package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/marinlafare/real-chessism/pkg/repositories"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseHandle reads a player handle path parameter, lower-cased.
func ParseHandle(c echo.Context, param string) (string, error) {
	handle := strings.ToLower(strings.TrimSpace(c.Param(param)))
	if handle == "" {
		return "", httperror.NewHTTPError(http.StatusBadRequest, "missing "+param)
	}
	return handle, nil
}

// ParseLink reads a numeric game link path parameter.
func ParseLink(c echo.Context, param string) (int64, error) {
	raw := c.Param(param)
	if raw == "" {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "missing "+param)
	}
	link, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || link <= 0 {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: must be a positive integer", param)
	}
	return link, nil
}

// ParsePage reads the limit and offset query parameters.
func ParsePage(c echo.Context) (repositories.Page, error) {
	var page repositories.Page
	var err error
	if raw := c.QueryParam("limit"); raw != "" {
		if page.Limit, err = strconv.Atoi(raw); err != nil {
			return page, BadRequest("invalid limit: must be an integer")
		}
	}
	if raw := c.QueryParam("offset"); raw != "" {
		if page.Offset, err = strconv.Atoi(raw); err != nil {
			return page, BadRequest("invalid offset: must be an integer")
		}
	}
	return page.Normalize(), nil
}

// BindRequest binds and validates a request body.
func BindRequest[T any](c echo.Context) (T, error) {
	var v T
	if err := c.Bind(&v); err != nil {
		return v, BadRequest("invalid request body")
	}
	if err := validate.Struct(v); err != nil {
		return v, httperror.WrapError(http.StatusBadRequest, validationError(err))
	}
	return v, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed rule '%s'", fe.Field(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// SuccessResponse returns a 200 OK with data
func SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

// CreatedResponse returns a 201 Created with data
func CreatedResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, data)
}

// AcceptedResponse returns a 202 Accepted with data
func AcceptedResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusAccepted, data)
}

// BadRequest returns a 400 Bad Request error
func BadRequest(message string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, message)
}

// NotFound returns a 404 Not Found error
func NotFound(format string, args ...any) error {
	return httperror.NewHTTPErrorf(http.StatusNotFound, format, args...)
}
