//go:build unix

package apiclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestDecodeAPIError(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusConflict,
		Body:       io.NopCloser(strings.NewReader(`{"error": "alpha has no app.yaml manifest"}`)),
	}

	err := decodeAPIError(resp)
	var api *APIError
	if !errors.As(err, &api) {
		t.Fatalf("err = %T, want *APIError", err)
	}
	if api.StatusCode != http.StatusConflict {
		t.Errorf("StatusCode = %d", api.StatusCode)
	}
	if api.Message != "alpha has no app.yaml manifest" {
		t.Errorf("Message = %q", api.Message)
	}
	if !strings.Contains(api.Error(), "alpha has no app.yaml manifest") {
		t.Errorf("Error() = %q", api.Error())
	}
}

func TestDecodeAPIError_NonJSONBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusInternalServerError,
		Body:       io.NopCloser(strings.NewReader("upstream blew up")),
	}

	err := decodeAPIError(resp)
	var api *APIError
	if !errors.As(err, &api) {
		t.Fatalf("err = %T, want *APIError", err)
	}
	if api.Message != "" {
		t.Errorf("Message = %q, want empty for non-JSON body", api.Message)
	}
	if !strings.Contains(api.Error(), "upstream blew up") {
		t.Errorf("Error() = %q", api.Error())
	}
}

func TestIsNotFound(t *testing.T) {
	notFound := &APIError{StatusCode: http.StatusNotFound, Message: "no app named ghost"}
	if !IsNotFound(notFound) {
		t.Error("IsNotFound = false for a 404 APIError")
	}
	if !IsNotFound(fmt.Errorf("remove: %w", notFound)) {
		t.Error("IsNotFound = false for a wrapped 404 APIError")
	}
	if IsNotFound(&APIError{StatusCode: http.StatusConflict}) {
		t.Error("IsNotFound = true for a 409")
	}
	if IsNotFound(errors.New("plain error")) {
		t.Error("IsNotFound = true for a non-API error")
	}
}
