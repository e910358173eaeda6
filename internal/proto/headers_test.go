package proto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderSetScalars(t *testing.T) {
	var req CreateRequest
	err := json.Unmarshal([]byte(`{"download_headers": {"aa": 1, "bb": "two", "cc": true, "dd": -1.5}, "upload_headers": null}`), &req)
	require.NoError(t, err)
	assert.Equal(t, HeaderSet{"aa": "1", "bb": "two", "cc": "true", "dd": "-1.5"}, req.DownloadHeaders)
	assert.Nil(t, req.UploadHeaders)
}

func TestHeaderSetRejectsCompositeValues(t *testing.T) {
	var req CreateRequest
	err := json.Unmarshal([]byte(`{"upload_headers": {"aa": {"x": 1}}}`), &req)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindInvalidBody, perr.Name)
	assert.Contains(t, perr.Message, `{"x": 1}`)
}

func TestClientErrorDefaults(t *testing.T) {
	var ce *ClientError
	assert.Equal(t, 400, ce.Status())
	assert.Equal(t, &Error{Name: "Error", Message: "The other side encountered an unspecified error"}, ce.Body())

	ce = &ClientError{HTTPStatus: 503, Name: "GenericError", Message: "this is an error"}
	assert.Equal(t, 503, ce.Status())
	assert.Equal(t, &Error{Name: "GenericError", Message: "this is an error"}, ce.Body())
}

func TestStreamFailureMessages(t *testing.T) {
	assert.Equal(t, "Stream source raised an error", StreamFailure(true, false).Message)
	assert.Equal(t, "Stream source closed unexpectedly", StreamFailure(true, true).Message)
	assert.Equal(t, KindStreamDestination, StreamFailure(false, false).Name)
	assert.Equal(t, "Stream destination closed unexpectedly", StreamFailure(false, true).Message)
}
