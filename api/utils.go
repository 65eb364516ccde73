package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"hermannm.dev/devlog/log"
	"hermannm.dev/eventanalytics/cost"
	"hermannm.dev/eventanalytics/db"
	"hermannm.dev/wrap"
)

func sendClientError(res http.ResponseWriter, err error, message string) {
	sendError(res, http.StatusBadRequest, err, message)
}

func sendServerError(res http.ResponseWriter, err error, message string) {
	sendError(res, http.StatusInternalServerError, err, message)
}

// sendQueryError maps the analytics client's error categories to status codes.
func sendQueryError(res http.ResponseWriter, err error) {
	var validationErr *db.ValidationError
	var identifierErr *db.IdentifierError
	var insufficientDataErr *db.InsufficientDataError
	var budgetErr *cost.BudgetExceededError
	var warehouseErr *db.WarehouseError

	switch {
	case errors.As(err, &validationErr), errors.As(err, &identifierErr):
		sendClientError(res, err, "invalid analysis request")
	case errors.As(err, &insufficientDataErr):
		sendError(res, http.StatusUnprocessableEntity, err, "")
	case errors.As(err, &budgetErr):
		sendError(res, http.StatusTooManyRequests, err, "")
	case errors.As(err, &warehouseErr):
		sendError(res, http.StatusBadGateway, err, "")
	case errors.Is(err, db.ErrNoWarehouse):
		sendError(res, http.StatusServiceUnavailable, err, "")
	default:
		sendServerError(res, err, "failed to run analysis query")
	}
}

func sendError(res http.ResponseWriter, statusCode int, err error, message string) {
	if statusCode >= http.StatusInternalServerError {
		switch {
		case err == nil:
			log.ErrorMessage(message)
		case message == "":
			log.ErrorCause(err, "request failed")
		default:
			log.ErrorCause(err, message)
		}
	}

	if err != nil {
		if message == "" {
			message = err.Error()
		} else {
			message = wrap.Error(err, message).Error()
		}
	}

	if statusCode < http.StatusInternalServerError {
		log.Debug(message)
	}
	http.Error(res, message, statusCode)
}

func sendJSON(res http.ResponseWriter, value any) {
	body, err := json.Marshal(value)
	if err != nil {
		sendServerError(res, err, "failed to serialize response")
		return
	}

	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(http.StatusOK)
	if _, err := res.Write(body); err != nil {
		log.ErrorCause(err, "failed to write response")
	}
}
