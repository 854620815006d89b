package kinesisfake

import (
	"encoding/json"
	"net/http"
)

func handleError(w http.ResponseWriter, err error) {
	code, status := "InternalFailure", http.StatusInternalServerError
	if kerr, ok := err.(KinesisError); ok {
		code, status = kerr.AWSExceptionCode(), kerr.StatusCode()
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"__type": code, "message": err.Error()})
}

type KinesisError interface {
	error
	StatusCode() int
	AWSExceptionCode() string
}

/* UnsupportedOperationError */

type UnsupportedOperationError struct {
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	return "Operation '" + e.Operation + "' not supported"
}

func (e *UnsupportedOperationError) StatusCode() int {
	return http.StatusBadRequest
}

func (e *UnsupportedOperationError) AWSExceptionCode() string {
	return "UnknownOperationException"
}

/* ResourceNotFoundException */

type ResourceNotFoundException struct {
	message string
}

func (e *ResourceNotFoundException) Error() string {
	if e.message != "" {
		return e.message
	}
	return "Resource not found"
}

func (e *ResourceNotFoundException) StatusCode() int {
	return http.StatusBadRequest
}

func (e *ResourceNotFoundException) AWSExceptionCode() string {
	return "ResourceNotFoundException"
}
