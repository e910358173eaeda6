package proto

import "fmt"

// Error is the {"name","message"} envelope used for every error body.
type Error struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprint(e.Name, ": ", e.Message)
}

// Error kind names.
const (
	KindInvalidBody       = "InvalidBodyError"
	KindInternal          = "InternalError"
	KindAlreadyConnected  = "AlreadyConnectedError"
	KindSessionNotFound   = "SessionNotFoundError"
	KindBadRoute          = "BadRouteError"
	KindSessionTimeout    = "SessionTimeoutError"
	KindStreamStarted     = "StreamStartedError"
	KindStreamSource      = "StreamSourceError"
	KindStreamDestination = "StreamDestinationError"
	KindStream            = "StreamError"
	KindRateLimited       = "RateLimitedError"
)

func InvalidBody(message string) *Error {
	return &Error{Name: KindInvalidBody, Message: message}
}

func Internal(message string) *Error {
	return &Error{Name: KindInternal, Message: message}
}

// AlreadyConnected reports a second registration for side ("source" or "destination").
func AlreadyConnected(side string) *Error {
	return &Error{Name: KindAlreadyConnected, Message: "A client has already connected to the " + side + " side of this stream"}
}

func SessionNotFound() *Error {
	return &Error{Name: KindSessionNotFound, Message: "The specified session id does not exist"}
}

func BadRoute() *Error {
	return &Error{Name: KindBadRoute, Message: "No endpoint exists for the specified method and/or route"}
}

func SessionTimeout() *Error {
	return &Error{Name: KindSessionTimeout, Message: "The specified session expired before both sides connected"}
}

func StreamStarted() *Error {
	return &Error{Name: KindStreamStarted, Message: "The specified session has already started streaming"}
}

func RateLimited() *Error {
	return &Error{Name: KindRateLimited, Message: "Too many requests from this client, slow down"}
}

// StreamFailure describes a transport failure of one leg. source selects the
// side, disconnected distinguishes an unexpected close from an explicit error.
func StreamFailure(source, disconnected bool) *Error {
	switch {
	case source && disconnected:
		return &Error{Name: KindStreamSource, Message: "Stream source closed unexpectedly"}
	case source:
		return &Error{Name: KindStreamSource, Message: "Stream source raised an error"}
	case disconnected:
		return &Error{Name: KindStreamDestination, Message: "Stream destination closed unexpectedly"}
	default:
		return &Error{Name: KindStreamDestination, Message: "Stream destination raised an error"}
	}
}

// StreamErrorDefault is used when a failure cannot be attributed to a side.
func StreamErrorDefault() *Error {
	return &Error{Name: KindStream, Message: "Stream raised an error"}
}

const (
	defaultClientErrorStatus  = 400
	defaultClientErrorName    = "Error"
	defaultClientErrorMessage = "The other side encountered an unspecified error"
)

// Status returns the HTTP status to answer with, defaulting to 400.
func (c *ClientError) Status() int {
	if c == nil || c.HTTPStatus == 0 {
		return defaultClientErrorStatus
	}
	return c.HTTPStatus
}

// Body returns the error envelope for the report, filling in defaults.
func (c *ClientError) Body() *Error {
	e := &Error{Name: defaultClientErrorName, Message: defaultClientErrorMessage}
	if c == nil {
		return e
	}
	if c.Name != "" {
		e.Name = c.Name
	}
	if c.Message != "" {
		e.Message = c.Message
	}
	return e
}
