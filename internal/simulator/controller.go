// Package simulator is an in-process stand-in for the crane controller. It
// speaks the same line protocol as the hardware (status lines followed by an
// echo of the command), keeps a pose and gripper state, and records every
// command so tests can assert on the exact motion sequence.
package simulator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"platecrane/internal/arm"
)

// Options tunes the simulated controller.
type Options struct {
	Home arm.Position
	// ZMin and ZMax clamp the vertical axis; jogging past them stops at the limit.
	ZMin float64
	ZMax float64
	// BusyPolls is how many STATUS queries report motion after each move.
	BusyPolls int
	Version   string
	// SilentMotion drops the status line from motion replies, as a controller
	// does when the read times out mid-move.
	SilentMotion bool
}

// DefaultOptions returns limits that fit the stock deck.
func DefaultOptions() Options {
	return Options{
		Home:      arm.Position{Z: 23.5188, R: 0, Y: 0, P: 0},
		ZMin:      -450,
		ZMax:      23.5188,
		BusyPolls: 1,
		Version:   "Sciclops Simulator 1.0",
	}
}

type fault struct {
	code      string
	text      string
	remaining int
}

// Controller is the simulated device state.
type Controller struct {
	mu          sync.Mutex
	opts        Options
	pos         arm.Position
	gripperOpen bool
	holding     bool
	speed       int
	limp        bool
	points      map[string]arm.Position
	busy        int
	faults      map[string]*fault
	log         []string
}

// New returns a homed controller with an open gripper.
func New(opts Options) *Controller {
	if opts.ZMax == 0 && opts.ZMin == 0 {
		defaults := DefaultOptions()
		opts.ZMin, opts.ZMax = defaults.ZMin, defaults.ZMax
	}
	if opts.Version == "" {
		opts.Version = DefaultOptions().Version
	}
	return &Controller{
		opts:        opts,
		pos:         opts.Home,
		gripperOpen: true,
		speed:       100,
		points:      make(map[string]arm.Position),
		faults:      make(map[string]*fault),
	}
}

// InjectFault makes the next times commands with verb fail with code and
// text. times of zero fails forever.
func (c *Controller) InjectFault(verb, code, text string, times int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults[strings.ToUpper(verb)] = &fault{code: code, text: text, remaining: times}
}

// ClearFaults removes injected faults.
func (c *Controller) ClearFaults() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults = make(map[string]*fault)
}

// SetBusyPolls changes how long moves report busy.
func (c *Controller) SetBusyPolls(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.BusyPolls = n
}

// Halt ends any motion in progress, so the next STATUS reports ready.
func (c *Controller) Halt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = 0
}

// Position returns the simulated pose.
func (c *Controller) Position() arm.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

// GripperOpen reports the gripper state.
func (c *Controller) GripperOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gripperOpen
}

// Speed returns the last accepted speed.
func (c *Controller) Speed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// Limp reports whether the joints are released.
func (c *Controller) Limp() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limp
}

// Commands returns every command received so far.
func (c *Controller) Commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

// MotionCommands returns received commands that move the arm or gripper.
func (c *Controller) MotionCommands() []string {
	var out []string
	for _, cmd := range c.Commands() {
		if IsMotion(cmd) {
			out = append(out, cmd)
		}
	}
	return out
}

// ResetLog forgets recorded commands.
func (c *Controller) ResetLog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = nil
}

// IsMotion reports whether cmd physically moves the arm or gripper.
func IsMotion(cmd string) bool {
	switch verbOf(cmd) {
	case "HOME", "MOVE", "JOG", "OPEN", "CLOSE", "RESET", "LIMP":
		return true
	default:
		return false
	}
}

// Handle executes one command and returns the full reply, echo included.
func (c *Controller) Handle(command string) string {
	cmd := strings.TrimRight(command, "\r\n")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, cmd)

	verb := verbOf(cmd)
	var lines []string
	if f, ok := c.faults[verb]; ok {
		lines = []string{f.code + " " + f.text}
		if f.remaining > 0 {
			f.remaining--
			if f.remaining == 0 {
				delete(c.faults, verb)
			}
		}
	} else {
		lines = c.execute(verb, strings.TrimSpace(strings.TrimPrefix(cmd, verb)))
		if c.opts.SilentMotion && IsMotion(cmd) {
			lines = nil
		}
	}

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	b.WriteString(cmd)
	b.WriteString("\r\n")
	return b.String()
}

func (c *Controller) execute(verb, args string) []string {
	switch verb {
	case "STATUS":
		if c.busy > 0 {
			c.busy--
			return []string{"BUSY"}
		}
		return []string{"0000 Ready"}
	case "GETPOS":
		return []string{c.pos.String(), "0000 Success"}
	case "VERSION":
		return []string{"0000 " + c.opts.Version}
	case "GETCONFIG":
		return []string{"0000 Sciclops 4 axis, Z R Y P"}
	case "GETGRIPPERLENGTH":
		return []string{"0000 101.6"}
	case "GETCOLLAPSEDISTANCE":
		return []string{"0000 94.5"}
	case "GETSTEPSPERUNIT":
		return []string{"0000 Z:100, R:50, Y:100, P:25"}
	case "GETGRIPPERISOPEN":
		return []string{"0000 " + boolDigit(c.gripperOpen)}
	case "GETGRIPPERISCLOSED":
		return []string{"0000 " + boolDigit(!c.gripperOpen)}
	case "GETPLATEPRESENT":
		return []string{"0000 " + boolDigit(c.holding)}
	case "LISTPOINTS":
		names := make([]string, 0, len(c.points))
		for name := range c.points {
			names = append(names, name)
		}
		sort.Strings(names)
		if len(names) == 0 {
			return []string{"0000 No points"}
		}
		return []string{"0000 " + strings.Join(names, "; ")}
	case "HOME", "RESET":
		c.pos = c.opts.Home
		c.startMotion()
		return []string{"0000 Success"}
	case "OPEN":
		c.gripperOpen = true
		c.holding = false
		return []string{"0000 Success"}
	case "CLOSE":
		c.gripperOpen = false
		c.holding = c.pos.Z < c.opts.ZMax-1
		return []string{"0000 Success"}
	case "SETSPEED":
		speed, err := strconv.Atoi(args)
		if err != nil || speed < 0 || speed > 100 {
			return []string{"0005 Invalid speed"}
		}
		c.speed = speed
		return []string{"0000 Success"}
	case "LIMP":
		// The controller's argument is inverted: FALSE releases the joints.
		switch strings.ToUpper(args) {
		case "TRUE":
			c.limp = false
		case "FALSE":
			c.limp = true
		default:
			return []string{"0006 Invalid argument"}
		}
		return []string{"0000 Success"}
	case "JOG":
		return c.jog(args)
	case "LOADPOINT":
		return c.loadPoint(args)
	case "MOVE":
		pos, ok := c.points[args]
		if !ok {
			return []string{"0010 Point not found"}
		}
		c.pos = pos
		c.startMotion()
		return []string{"0000 Success"}
	case "DELETEPOINT":
		if _, ok := c.points[args]; !ok {
			return []string{"0010 Point not found"}
		}
		delete(c.points, args)
		return []string{"0000 Success"}
	default:
		return []string{"0001 Unknown command"}
	}
}

func (c *Controller) jog(args string) []string {
	axisText, distText, ok := strings.Cut(args, ",")
	if !ok {
		return []string{"0006 Invalid argument"}
	}
	axis, err := arm.ParseAxis(strings.TrimSpace(axisText))
	if err != nil {
		return []string{"0006 Invalid axis"}
	}
	dist, err := strconv.Atoi(strings.TrimSpace(distText))
	if err != nil {
		return []string{"0006 Invalid distance"}
	}
	switch axis {
	case arm.AxisZ:
		c.pos.Z = clamp(c.pos.Z+float64(dist), c.opts.ZMin, c.opts.ZMax)
	case arm.AxisR:
		c.pos.R += float64(dist)
	case arm.AxisY:
		c.pos.Y = clamp(c.pos.Y+float64(dist), 0, 400)
	case arm.AxisP:
		c.pos.P += float64(dist)
	}
	c.startMotion()
	return []string{"0000 Success"}
}

// loadPoint parses "<name>, Z:<z>, P:<p>, Y:<y>, R:<r>".
func (c *Controller) loadPoint(args string) []string {
	fields := strings.Split(args, ",")
	if len(fields) != 5 {
		return []string{"0006 Invalid point"}
	}
	name := strings.TrimSpace(fields[0])
	values := map[string]float64{}
	for _, field := range fields[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(field), ":")
		if !ok {
			return []string{"0006 Invalid point"}
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return []string{"0006 Invalid point"}
		}
		values[strings.ToUpper(key)] = v
	}
	for _, key := range []string{"Z", "P", "Y", "R"} {
		if _, ok := values[key]; !ok {
			return []string{fmt.Sprintf("0006 Missing %s", key)}
		}
	}
	c.points[name] = arm.Position{Z: values["Z"], R: values["R"], Y: values["Y"], P: values["P"]}
	return []string{"0000 Success"}
}

func (c *Controller) startMotion() {
	c.busy = c.opts.BusyPolls
}

func verbOf(cmd string) string {
	verb, _, _ := strings.Cut(strings.TrimSpace(cmd), " ")
	return strings.ToUpper(verb)
}

func boolDigit(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
