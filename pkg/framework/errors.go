package framework

import (
	"strconv"
	"strings"
)

// RunnableError is the failure of a Runnable started by Runner.
type RunnableError struct {
	Name string
	Err  error
}

func (e *RunnableError) Error() string {
	return e.Name + ": " + e.Err.Error()
}

func (e *RunnableError) Unwrap() error {
	return e.Err
}

// AggregatedError aggregates multiple errors.
type AggregatedError struct {
	Errors []error
}

// Error implements error.
func (e *AggregatedError) Error() string {
	switch len(e.Errors) {
	case 0:
		return ""
	case 1:
		return e.Errors[0].Error()
	}
	msg := make([]string, len(e.Errors))
	for n, err := range e.Errors {
		msg[n] = err.Error()
	}
	return strconv.Itoa(len(e.Errors)) + " errors: " + strings.Join(msg, "; ")
}

// Add adds errors to be aggregated. nil will be skipped.
func (e *AggregatedError) Add(errs ...error) *AggregatedError {
	for _, err := range errs {
		if err != nil {
			e.Errors = append(e.Errors, err)
		}
	}
	return e
}

// Unwrap exposes the aggregated errors to errors.Is and errors.As.
func (e *AggregatedError) Unwrap() []error {
	return e.Errors
}

// Failed lists the names of failed Runnables.
func (e *AggregatedError) Failed() []string {
	var names []string
	for _, err := range e.Errors {
		if re, ok := err.(*RunnableError); ok {
			names = append(names, re.Name)
		}
	}
	return names
}

// Aggregate returns aggregated error if any error happened.
func (e *AggregatedError) Aggregate() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}
