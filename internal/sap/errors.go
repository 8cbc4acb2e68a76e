package sap

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"strings"
)

// Error kinds for the delivery subsystem. Callers classify failures
// with errors.Is; concrete causes are wrapped underneath.
var (
	// ErrConfiguration: required connection parameters missing after
	// every fallback tier. No network attempt has been made.
	ErrConfiguration = errors.New("connection configuration incomplete")

	// ErrConnection: handshake, authentication, or dial failure for
	// every attempted profile variant.
	ErrConnection = errors.New("connection failed")

	// ErrConnectTimeout: the handshake did not complete within the
	// profile's connect timeout. Wrapped under ErrConnection.
	ErrConnectTimeout = errors.New("connection timed out")

	// ErrNavigation: the target directory is neither accessible nor
	// creatable.
	ErrNavigation = errors.New("remote directory unavailable")

	// ErrTransfer: the document bytes could not be written in full.
	ErrTransfer = errors.New("transfer failed")

	// ErrVerification: the upload call returned normally but the file
	// was not observed in the post-upload listing.
	ErrVerification = errors.New("uploaded file not present in verification listing")

	// ErrUpdate: the transfer succeeded but neither update strategy
	// could persist the delivery status.
	ErrUpdate = errors.New("delivery status update had no effect")

	// ErrNotFound: the invoice does not exist.
	ErrNotFound = errors.New("invoice not found")

	// ErrPrecondition: the invoice has no generated document to send.
	ErrPrecondition = errors.New("invoice has no generated document")
)

// isAuthFailure reports whether err looks like a credential rejection
// rather than a transport problem. Only authentication-shaped failures
// justify re-dialing with the implicit-TLS variant; retrying a dead
// host would just double the wait.
func isAuthFailure(err error) bool {
	if err == nil {
		return false
	}

	// FTP servers answer 430/530/532 on bad credentials.
	var proto *textproto.Error
	if errors.As(err, &proto) {
		switch proto.Code {
		case 430, 530, 532:
			return true
		}
		return false
	}

	// Plain transport problems are never auth failures.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrConnectTimeout) {
		return false
	}

	// x/crypto/ssh reports auth rejection only through the error text.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "login incorrect")
}

// isTimeout reports whether err is a deadline-shaped failure.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
