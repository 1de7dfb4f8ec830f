package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusError   = "error"
	StatusHealthy = "healthy"
)

// ErrInvalidRequest marks a request that decoded but is missing required data.
var ErrInvalidRequest = errors.New("invalid request")

// Account identifies the trading account a request is made for.
// Clients send it either as a number or a string.
type Account string

func (a *Account) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}

	switch t := v.(type) {
	case nil:
		*a = ""
	case string:
		*a = Account(t)
	case json.Number:
		*a = Account(t.String())
	default:
		return fmt.Errorf("account must be a string or a number")
	}
	return nil
}

func (a *Account) DecodeMsgpack(dec *msgpack.Decoder) error {
	v, err := dec.DecodeInterfaceLoose()
	if err != nil {
		return err
	}

	switch t := v.(type) {
	case nil:
		*a = ""
	case string:
		*a = Account(t)
	case int64:
		*a = Account(strconv.FormatInt(t, 10))
	case uint64:
		*a = Account(strconv.FormatUint(t, 10))
	case float64:
		*a = Account(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		return fmt.Errorf("account must be a string or a number")
	}
	return nil
}

func (a Account) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(string(a))
}

// UploadRequest carries a script to store and compile
type UploadRequest struct {
	Script   string  `json:"script" msgpack:"script"`
	Filename string  `json:"filename" msgpack:"filename"`
	Account  Account `json:"account" msgpack:"account"`
}

func (r *UploadRequest) Validate() error {
	switch {
	case r.Script == "":
		return fmt.Errorf("%w: script is required", ErrInvalidRequest)
	case r.Filename == "":
		return fmt.Errorf("%w: filename is required", ErrInvalidRequest)
	case r.Account == "":
		return fmt.Errorf("%w: account is required", ErrInvalidRequest)
	}
	return nil
}

type UploadResponse struct {
	Status   string `json:"status" msgpack:"status"`
	Message  string `json:"message" msgpack:"message"`
	Filename string `json:"filename" msgpack:"filename"`
	Compiled bool   `json:"compiled" msgpack:"compiled"`
}

// ExecuteRequest names a compiled script to run
type ExecuteRequest struct {
	ScriptName string  `json:"script_name" msgpack:"script_name"`
	Account    Account `json:"account" msgpack:"account"`
}

func (r *ExecuteRequest) Validate() error {
	switch {
	case r.ScriptName == "":
		return fmt.Errorf("%w: script_name is required", ErrInvalidRequest)
	case r.Account == "":
		return fmt.Errorf("%w: account is required", ErrInvalidRequest)
	}
	return nil
}

type ExecuteResponse struct {
	Status  string `json:"status" msgpack:"status"`
	Message string `json:"message" msgpack:"message"`
	Script  string `json:"script" msgpack:"script"`
	Result  bool   `json:"result" msgpack:"result"`
}

type HealthResponse struct {
	Status    string `json:"status" msgpack:"status"`
	Timestamp string `json:"timestamp" msgpack:"timestamp"`
	Message   string `json:"message" msgpack:"message"`
}

type LogsResponse struct {
	Status    string `json:"status" msgpack:"status"`
	Logs      string `json:"logs" msgpack:"logs"`
	Timestamp string `json:"timestamp" msgpack:"timestamp"`
}

// ErrorResponse is the envelope for every failed request
type ErrorResponse struct {
	Status  string `json:"status" msgpack:"status"`
	Message string `json:"message" msgpack:"message"`
}

func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Status: StatusError, Message: message}
}
