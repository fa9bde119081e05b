// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrInvalidListenAddress is the sentinel error wrapped by InvalidListenAddressError.
var ErrInvalidListenAddress = errors.New("invalid listen address")

type (
	// ListenAddress is a host:port pair for a TCP listener. The host may
	// be empty (all interfaces). Port 0 means auto-select; other ports
	// must be in the range 1-65535.
	ListenAddress string

	// InvalidListenAddressError is returned when a ListenAddress value is
	// not a valid host:port pair.
	InvalidListenAddressError struct {
		Value  ListenAddress
		Reason string
	}
)

// String returns the string representation of the ListenAddress.
func (a ListenAddress) String() string { return string(a) }

// Port returns the numeric port. It is only meaningful for a valid address.
func (a ListenAddress) Port() int {
	_, port, err := net.SplitHostPort(string(a))
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}

// Validate returns an error if the ListenAddress is not host:port with a
// port in range.
func (a ListenAddress) Validate() error {
	_, port, err := net.SplitHostPort(string(a))
	if err != nil {
		return &InvalidListenAddressError{Value: a, Reason: err.Error()}
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return &InvalidListenAddressError{Value: a, Reason: "port is not a number"}
	}
	if n < 0 || n > 65535 {
		return &InvalidListenAddressError{Value: a, Reason: "port must be 0 (auto-select) or 1-65535"}
	}
	return nil
}

// Error implements the error interface for InvalidListenAddressError.
func (e *InvalidListenAddressError) Error() string {
	return fmt.Sprintf("invalid listen address %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidListenAddress for errors.Is() compatibility.
func (e *InvalidListenAddressError) Unwrap() error { return ErrInvalidListenAddress }
