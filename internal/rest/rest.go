package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgPack = "application/msgpack"

	// MaxBodySize caps request bodies, scripts are source text and stay well below this.
	MaxBodySize = 8 << 20
)

var (
	ErrUnsupportedContentType = errors.New("Content-Type header is not application/json or application/msgpack")
	ErrMalformedBody          = errors.New("malformed request body")
	ErrBodyTooLarge           = errors.New("request body too large")
	errInvalidStatusCode      = errors.New("invalid status code")
)

// DecodeRequestBody decodes JSON or Msgpack data from the request body into v.
// A missing Content-Type is treated as JSON.
func DecodeRequestBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	contentType := r.Header.Get("Content-Type")
	// Handle possible charset in Content-Type
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = strings.TrimSpace(contentType[:idx])
	}

	body := http.MaxBytesReader(w, r.Body, MaxBodySize)

	var err error
	switch contentType {
	case "", ContentTypeJSON:
		err = json.NewDecoder(body).Decode(v)
	case ContentTypeMsgPack:
		err = msgpack.NewDecoder(body).Decode(v)
	default:
		return ErrUnsupportedContentType
	}

	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return ErrBodyTooLarge
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrMalformedBody)
		}
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return nil
}

// WriteResponse encodes and writes a JSON or Msgpack response depending on the Accept header
func WriteResponse(status int, w http.ResponseWriter, r *http.Request, v interface{}) error {
	if status < 100 || status > 599 {
		http.Error(w, errInvalidStatusCode.Error(), http.StatusInternalServerError)
		return errInvalidStatusCode
	}

	accept := r.Header.Get("Accept")
	if strings.Contains(accept, ContentTypeMsgPack) {
		w.Header().Set("Content-Type", ContentTypeMsgPack)
		w.WriteHeader(status)
		return msgpack.NewEncoder(w).Encode(v)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
