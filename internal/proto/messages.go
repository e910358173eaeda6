package proto

import "time"

// CreateRequest is the optional body of POST /stream.
type CreateRequest struct {
	DownloadHeaders HeaderSet `json:"download_headers,omitempty"`
	UploadHeaders   HeaderSet `json:"upload_headers,omitempty"`
}

// CreateResponse is returned once a session has been created.
type CreateResponse struct {
	Stream string `json:"stream"`
}

// ClientError is the out-of-band failure report a participant posts to
// /stream/{id}/error when it cannot take part in the transfer.
type ClientError struct {
	HTTPStatus int    `json:"http_status,omitempty"`
	Name       string `json:"name,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Summary is the JSON snapshot of a session served by the status and list endpoints.
type Summary struct {
	ID               string     `json:"id"`
	CreatedAt        time.Time  `json:"created_at"`
	DeactivatedAt    *time.Time `json:"deactivated_at"`
	State            string     `json:"state"`
	Active           bool       `json:"active"`
	Error            *Error     `json:"error"`
	DownloadHeaders  HeaderSet  `json:"download_headers"`
	UploadHeaders    HeaderSet  `json:"upload_headers"`
	BytesTransferred int64      `json:"bytes_transferred"`
}

// StreamMarker is appended to a destination body whose headers were already
// committed when the stream failed.
type StreamMarker struct {
	Error *Error `json:"error"`
}
