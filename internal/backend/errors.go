package backend

import (
	"errors"
	"fmt"
	"strings"
)

// ApplicationError means the server received the request and rejected it.
// These are not retried.
type ApplicationError struct {
	Status  int
	Message string
}

func (e *ApplicationError) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// ConnectivityError means the request could not be sent or completed.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// Outcome classifies the result of a backend call.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeApplicationError
	OutcomeConnectivityError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeApplicationError:
		return "application_error"
	case OutcomeConnectivityError:
		return "connectivity_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Classify maps an error returned by Client to an Outcome. Unknown errors
// count as application errors unless their text looks like a network failure.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if IsConnectivity(err) {
		return OutcomeConnectivityError
	}
	return OutcomeApplicationError
}

var connectivityPatterns = []string{
	"failed to fetch",
	"network",
	"connection refused",
	"connection reset",
	"no such host",
	"timeout",
	"offline",
	"unreachable",
}

// IsConnectivity reports whether err is a connectivity failure. Application
// errors whose message matches a connectivity pattern (a regenerate that
// failed upstream with "network error", for instance) also count.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	if errors.As(err, &ce) {
		return true
	}
	var ae *ApplicationError
	if errors.As(err, &ae) {
		if ae.Status != 0 {
			return false
		}
		return matchesConnectivity(ae.Message)
	}
	return err != nil && matchesConnectivity(err.Error())
}

func matchesConnectivity(msg string) bool {
	msg = strings.ToLower(msg)
	for _, p := range connectivityPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// Message returns the text to show the user for err: the server's own
// message for an ApplicationError that carries one, otherwise err.Error().
func Message(err error) string {
	var ae *ApplicationError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return err.Error()
}
