package live

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sebas/amilive/internal/ami"
)

// Commander sends manager actions and returns their responses.
// *ami.Conn satisfies it.
type Commander interface {
	SendAction(ctx context.Context, a *ami.Action) (*ami.Response, error)
}

// ErrNotConnected is returned for commands on a channel with no commander.
var ErrNotConnected = errors.New("no manager connection")

// causeVariable carries the hangup cause to the far end.
const causeVariable = "PRI_CAUSE"

// MixMonitorDirection selects which audio direction a mute applies to.
type MixMonitorDirection string

const (
	DirectionRead  MixMonitorDirection = "read"
	DirectionWrite MixMonitorDirection = "write"
	DirectionBoth  MixMonitorDirection = "both"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type redirectArgs struct {
	Context  string `validate:"required"`
	Exten    string `validate:"required"`
	Priority int    `validate:"min=1"`
}

type dtmfArgs struct {
	Digit string `validate:"required,len=1,oneof=0 1 2 3 4 5 6 7 8 9 * # A B C D a b c d"`
}

type variableArgs struct {
	Name string `validate:"required"`
}

type changeMonitorArgs struct {
	Filename string `validate:"required"`
}

type muteArgs struct {
	Direction MixMonitorDirection `validate:"required,oneof=read write both"`
}

type timeoutArgs struct {
	Seconds int `validate:"min=0"`
}

func check(args any) error {
	if err := validate.Struct(args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

// send issues one action and maps an error response to a domain error.
func (c *Channel) send(ctx context.Context, a *ami.Action) (*ami.Response, error) {
	if c.cmd == nil {
		return nil, ErrNotConnected
	}
	resp, err := c.cmd.SendAction(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s for %s: %w", a.Name(), a.Get("Channel"), err)
	}
	if resp.IsError() {
		return nil, classify(a.Get("Channel"), a.Name(), resp.Text())
	}
	return resp, nil
}

// GetVariable returns a channel variable, fetching it from the switch on
// first read. Concurrent misses may each issue a fetch; the last response
// written wins.
func (c *Channel) GetVariable(ctx context.Context, name string) (string, error) {
	if err := check(variableArgs{Name: name}); err != nil {
		return "", err
	}

	c.varsMu.RLock()
	value, ok := c.vars[name]
	c.varsMu.RUnlock()
	if ok {
		return value, nil
	}

	resp, err := c.send(ctx, ami.GetVar(c.Name(), name))
	if err != nil {
		return "", err
	}
	value, ok = resp.LookupAttr("Value")
	if !ok {
		// Older servers answer with the variable name as the key.
		value = resp.Attr(name)
	}

	c.varsMu.Lock()
	c.vars[name] = value
	c.varsMu.Unlock()
	return value, nil
}

// SetVariable sets a channel variable on the switch and caches it once the
// switch has accepted it.
func (c *Channel) SetVariable(ctx context.Context, name, value string) error {
	if err := check(variableArgs{Name: name}); err != nil {
		return err
	}
	if _, err := c.send(ctx, ami.SetVar(c.Name(), name, value)); err != nil {
		return err
	}
	if change, ok := c.cacheVariable(time.Now(), name, value); ok {
		c.notify(change)
	}
	return nil
}

// Hangup hangs up the channel. A non-zero cause is also stored in
// PRI_CAUSE before hanging up.
func (c *Channel) Hangup(ctx context.Context, cause HangupCause) error {
	if cause > 0 {
		if err := c.SetVariable(ctx, causeVariable, strconv.Itoa(cause.Code())); err != nil {
			return err
		}
	}
	_, err := c.send(ctx, ami.Hangup(c.Name(), cause.Code()))
	return err
}

// SetAbsoluteTimeout hangs the channel up after seconds. Zero clears it.
func (c *Channel) SetAbsoluteTimeout(ctx context.Context, seconds int) error {
	if err := check(timeoutArgs{Seconds: seconds}); err != nil {
		return err
	}
	_, err := c.send(ctx, ami.AbsoluteTimeout(c.Name(), seconds))
	return err
}

// Redirect transfers the channel to a dialplan location.
func (c *Channel) Redirect(ctx context.Context, dpContext, exten string, priority int) error {
	if err := check(redirectArgs{Context: dpContext, Exten: exten, Priority: priority}); err != nil {
		return err
	}
	_, err := c.send(ctx, ami.Redirect(c.Name(), dpContext, exten, priority))
	return err
}

// RedirectBothLegs transfers the channel and, if bridged, its peer.
func (c *Channel) RedirectBothLegs(ctx context.Context, dpContext, exten string, priority int) error {
	if err := check(redirectArgs{Context: dpContext, Exten: exten, Priority: priority}); err != nil {
		return err
	}

	peerName := ""
	if peerID, ok := c.LinkedChannel(); ok && c.peers != nil {
		if peer, found := c.peers.Get(peerID); found {
			peerName = peer.Name()
		}
	}
	if peerName == "" {
		_, err := c.send(ctx, ami.Redirect(c.Name(), dpContext, exten, priority))
		return err
	}
	_, err := c.send(ctx, ami.RedirectBoth(c.Name(), peerName, dpContext, exten, priority))
	return err
}

// PlayDTMF plays one digit on the channel.
func (c *Channel) PlayDTMF(ctx context.Context, digit string) error {
	if err := check(dtmfArgs{Digit: digit}); err != nil {
		return err
	}
	_, err := c.send(ctx, ami.PlayDTMF(c.Name(), digit))
	return err
}

// StartMonitoring starts recording. Empty filename and format let the
// switch choose.
func (c *Channel) StartMonitoring(ctx context.Context, filename, format string, mix bool) error {
	_, err := c.send(ctx, ami.Monitor(c.Name(), filename, format, mix))
	return err
}

// ChangeMonitoring renames the recording file.
func (c *Channel) ChangeMonitoring(ctx context.Context, filename string) error {
	if err := check(changeMonitorArgs{Filename: filename}); err != nil {
		return err
	}
	_, err := c.send(ctx, ami.ChangeMonitor(c.Name(), filename))
	return err
}

func (c *Channel) StopMonitoring(ctx context.Context) error {
	_, err := c.send(ctx, ami.StopMonitor(c.Name()))
	return err
}

func (c *Channel) PauseMonitoring(ctx context.Context) error {
	_, err := c.send(ctx, ami.PauseMonitor(c.Name()))
	return err
}

func (c *Channel) UnpauseMonitoring(ctx context.Context) error {
	_, err := c.send(ctx, ami.UnpauseMonitor(c.Name()))
	return err
}

// PauseMixMonitor mutes one direction of a MixMonitor recording. It returns
// ErrRecording if the switch refuses to mute in the current state.
func (c *Channel) PauseMixMonitor(ctx context.Context, dir MixMonitorDirection) error {
	return c.mixMonitorMute(ctx, dir, 1)
}

// UnpauseMixMonitor unmutes one direction of a MixMonitor recording.
func (c *Channel) UnpauseMixMonitor(ctx context.Context, dir MixMonitorDirection) error {
	return c.mixMonitorMute(ctx, dir, 0)
}

func (c *Channel) mixMonitorMute(ctx context.Context, dir MixMonitorDirection, state int) error {
	if err := check(muteArgs{Direction: dir}); err != nil {
		return err
	}
	_, err := c.send(ctx, ami.MixMonitorMute(c.Name(), state, string(dir)))
	return err
}
