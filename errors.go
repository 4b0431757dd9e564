package vmill

import "github.com/pkg/errors"

// ConfigError reports a rejected configuration command: invalid axis
// id, duplicate ids, acceleration <= 0, unknown WCS index, or a
// channel referring to an unknown axis id (spec §7 ConfigError). The
// command surface rejects the call and leaves prior state untouched.
type ConfigError struct {
	cause error
}

func newConfigError(format string, args ...interface{}) error {
	return ConfigError{cause: errors.Errorf(format, args...)}
}

func wrapConfigError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return ConfigError{cause: errors.Wrapf(err, format, args...)}
}

func (e ConfigError) Error() string { return e.cause.Error() }
func (e ConfigError) Cause() error  { return e.cause }
func (e ConfigError) Unwrap() error { return e.cause }

// ExecutionError reports a fatal block condition that puts a channel
// into the Errored state (spec §7 ExecutionError): zero feed on a
// feed/arc move, an absent tool table entry with length comp active, or
// cutter comp requested with zero tool radius. It is returned by the
// channel command that surfaces it (e.g. Tick) in addition to being
// recorded on the channel's own error message field.
type ExecutionError struct {
	ChannelID int
	cause     error
}

func newExecutionError(channelID int, cause error) error {
	return ExecutionError{ChannelID: channelID, cause: cause}
}

func (e ExecutionError) Error() string { return e.cause.Error() }
func (e ExecutionError) Cause() error  { return e.cause }
func (e ExecutionError) Unwrap() error { return e.cause }

// ErrTickReentrant is returned by Tick when called while a prior Tick
// on the same MachineBrain has not yet returned (spec §5: "tick is
// non-reentrant... implementers must forbid recursive invocation").
var ErrTickReentrant = errors.New("vmill: Tick called re-entrantly")

// ErrUnknownAxis is returned by any command referencing an axis id the
// brain does not own.
var ErrUnknownAxis = errors.New("vmill: unknown axis id")

// ErrUnknownChannel is returned by any command referencing a channel id
// the brain does not own.
var ErrUnknownChannel = errors.New("vmill: unknown channel id")
