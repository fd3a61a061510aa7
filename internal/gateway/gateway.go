package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/joshp123/agrobot/internal/robot"
)

// Gateway is the contract both backends implement. All failures come back as
// errors; implementations never panic on remote input.
type Gateway interface {
	FetchStatus(ctx context.Context) (robot.Payload, error)
	SendCommand(ctx context.Context, command string) (CommandResult, error)
	UpdateCoordinates(ctx context.Context, coords []robot.Coordinate) error
}

// CommandResult is the outcome of an accepted command. NewStatus is advisory;
// the next FetchStatus is authoritative.
type CommandResult struct {
	Command   Command      `json:"command"`
	NewStatus robot.Status `json:"newStatus,omitempty"`
	Message   string       `json:"message,omitempty"`
}

// Command is a validated operator command.
type Command string

const (
	CommandStart  Command = "start"
	CommandResume Command = "resume"
	CommandPause  Command = "pause"
	CommandStop   Command = "stop"
	CommandCharge Command = "charge"
)

var commandStatus = map[Command]robot.Status{
	CommandStart:  robot.StatusActive,
	CommandResume: robot.StatusActive,
	CommandPause:  robot.StatusPause,
	CommandStop:   robot.StatusOffline,
	CommandCharge: robot.StatusCharging,
}

// Commands lists the recognized commands in display order.
func Commands() []Command {
	return []Command{CommandStart, CommandResume, CommandPause, CommandStop, CommandCharge}
}

// ParseCommand validates raw case-insensitively.
func ParseCommand(raw string) (Command, error) {
	cmd := Command(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := commandStatus[cmd]; !ok {
		return "", &ValidationError{Command: raw}
	}
	return cmd, nil
}

// Status is the state the robot is expected to reach after the command.
func (c Command) Status() robot.Status {
	return commandStatus[c]
}

// TransportError covers every failure reaching the status source or the
// command sink. It is always recoverable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError rejects an unrecognized command before anything is sent.
type ValidationError struct {
	Command string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("unknown command: %q", e.Command)
}

func transportErr(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}
