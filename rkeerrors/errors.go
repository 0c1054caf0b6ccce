// Package rkeerrors defines the status codes returned by RKE command
// handlers and the internal error type lower layers use before the
// dispatcher maps them onto the wire status table.
package rkeerrors

import "fmt"

// Code is a wire status code as defined by the RKE command table. Negative
// values are failures; zero is success.
type Code int

const (
	Success              Code = 0
	InvalidPacketLength  Code = -1
	InvalidSnOrDen       Code = -2
	MemoryAlloc          Code = -3
	InvalidParameter     Code = -4
	Filesystem           Code = -5
	CoinLoad             Code = -6
	CoinsNotDiv          Code = -7
	InvalidKeyStart      Code = -10
	KeyGeneration        Code = -11
	KeySplitting         Code = -12

	// Internal codes used below the dispatcher, never written to the wire
	// directly; handlers translate these into one of the codes above.
	FragmentCorrupt       Code = -100
	InsufficientFragments Code = -101
	CryptoFail            Code = -102
	LoadMismatch          Code = -103
	StorageFail           Code = -104
)

func (c Code) String() string {
	switch c {
	case Success:
		return "Success"
	case InvalidPacketLength:
		return "InvalidPacketLength"
	case InvalidSnOrDen:
		return "InvalidSnOrDen"
	case MemoryAlloc:
		return "MemoryAlloc"
	case InvalidParameter:
		return "InvalidParameter"
	case Filesystem:
		return "Filesystem"
	case CoinLoad:
		return "CoinLoad"
	case CoinsNotDiv:
		return "CoinsNotDiv"
	case InvalidKeyStart:
		return "InvalidKeyStart"
	case KeyGeneration:
		return "KeyGeneration"
	case KeySplitting:
		return "KeySplitting"
	case FragmentCorrupt:
		return "FragmentCorrupt"
	case InsufficientFragments:
		return "InsufficientFragments"
	case CryptoFail:
		return "CryptoFail"
	case LoadMismatch:
		return "LoadMismatch"
	case StorageFail:
		return "StorageFail"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Error is the concrete error type carried by rke packages: a status code
// plus a human-readable detail.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// New builds an *Error for the given code and detail message.
func New(code Code, msg string) error {
	return &Error{Code: code, Msg: msg}
}

// CodeOf extracts the status code carried by err, or Success for nil and
// MemoryAlloc's catch-all is never used here: an unrecognized error maps to
// InvalidParameter so a bug in a lower layer surfaces as a client-visible
// failure rather than silently reporting success.
func CodeOf(err error) Code {
	if err == nil {
		return Success
	}
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
		return e.Code
	}
	return InvalidParameter
}
