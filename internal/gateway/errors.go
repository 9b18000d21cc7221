package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies gateway failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindSpawnError
	KindProcessError
	KindConnectError
	KindRemoteError
	KindDecodeError
	KindInvalidArgs
	KindDisabled
)

var kindNames = map[Kind]string{
	KindUnknown:      "Unknown",
	KindNotFound:     "NotFound",
	KindSpawnError:   "SpawnError",
	KindProcessError: "ProcessError",
	KindConnectError: "ConnectError",
	KindRemoteError:  "RemoteError",
	KindDecodeError:  "DecodeError",
	KindInvalidArgs:  "InvalidArgs",
	KindDisabled:     "Disabled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText lets kinds appear by name in JSON output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Error is the error type returned by every gateway operation.
type Error struct {
	Kind   Kind
	Op     string // invoke name of the failing operation
	Msg    string // caller-visible message
	Status int    // HTTP status for RemoteError, exit code for ProcessError
	Err    error
}

func (e *Error) Error() string {
	if e.Msg == "" && e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// Message returns the caller-visible text of err without the op and kind prefix.
func Message(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		if ge.Msg != "" {
			return ge.Msg
		}
		if ge.Err != nil {
			return ge.Err.Error()
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
