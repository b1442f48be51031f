package api

type HTTPError struct {
	StatusCode int
	Message    string
	ErrorLog   error
	// MissingFieldIDs is echoed in the body for pre-chat failures.
	MissingFieldIDs []string
}

func (e *HTTPError) Error() string {
	return e.Message
}
