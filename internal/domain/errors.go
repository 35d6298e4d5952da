package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrUnsupportedMessageType = errors.New("unsupported message type")
	ErrUnsupportedOperation   = errors.New("unsupported operation")
	ErrChannelNotFound        = errors.New("channel not found")
	ErrProviderNotFound       = errors.New("provider not found")
	ErrUploadFailed           = errors.New("upload failed")
	ErrDownloadFailed         = errors.New("download failed")
)

// UnsupportedMessageTypeError is returned by Send for a type the provider
// does not render.
type UnsupportedMessageTypeError struct {
	Type MessageType
}

func (e *UnsupportedMessageTypeError) Error() string {
	return fmt.Sprintf("unsupported message type: %s", e.Type)
}

func (e *UnsupportedMessageTypeError) Is(target error) bool {
	return target == ErrUnsupportedMessageType
}

// RemoteAPIError is a non-success response from a platform API. Message holds
// the platform's own error text when the response carried one.
type RemoteAPIError struct {
	Platform   ChannelType
	StatusCode int
	Code       int
	Subcode    int
	Message    string
	TraceID    string
}

func (e *RemoteAPIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s API error %d (code %d): %s", e.Platform, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s API error %d: %s", e.Platform, e.StatusCode, e.Message)
}

// Unauthorized reports whether the platform rejected the credentials.
func (e *RemoteAPIError) Unauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403 || e.Code == 190
}

// NetworkError is a transport-level failure talking to a platform.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

type TransferDirection string

const (
	Upload   TransferDirection = "upload"
	Download TransferDirection = "download"
)

// MediaTransferError reports which phase of a two-phase media transfer failed.
type MediaTransferError struct {
	Direction TransferDirection
	Phase     string
	Err       error
}

func (e *MediaTransferError) Error() string {
	return fmt.Sprintf("%s failed during %s: %v", e.Direction, e.Phase, e.Err)
}

func (e *MediaTransferError) Unwrap() error { return e.Err }

func (e *MediaTransferError) Is(target error) bool {
	switch target {
	case ErrUploadFailed:
		return e.Direction == Upload
	case ErrDownloadFailed:
		return e.Direction == Download
	}
	return false
}
