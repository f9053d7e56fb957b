// Package protocol speaks the crane controller's line protocol: ASCII
// commands terminated by CRLF, answered by zero or more text lines, an
// optional four-digit status line, and finally an echo of the command.
package protocol

import (
	"regexp"
	"strings"

	"platecrane/internal/arm"
	"platecrane/internal/faults"
)

// CodeOK is the status code the controller uses for success.
const CodeOK = "0000"

const successMarker = "0000 Success"

var (
	statusLinePattern = regexp.MustCompile(`^(\d{4}) (.*\S)`)
	readyPattern      = regexp.MustCompile(`0000 (.*\w)`)
)

// Status is a parsed "<code> <text>" line.
type Status struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

// OK reports whether the controller accepted the command.
func (s Status) OK() bool {
	return s.Code == CodeOK
}

func (s Status) String() string {
	return s.Code + " " + s.Text
}

// Response is everything the controller printed for one command.
type Response struct {
	Command string   `json:"command"`
	Raw     string   `json:"raw"`
	Lines   []string `json:"lines"`
	// Status is the last status line, nil when none arrived.
	Status *Status `json:"status,omitempty"`
	// Successes counts "0000 Success" occurrences.
	Successes int `json:"successes"`
	// Echoed is false when the reads ended before the echo was observed.
	Echoed bool `json:"echoed"`
}

// Parse splits raw into lines and extracts the status. The echoed command
// line is not part of Lines.
func Parse(command, raw string) Response {
	cmd := trimCommand(command)
	resp := Response{
		Command:   cmd,
		Raw:       raw,
		Successes: strings.Count(raw, successMarker),
	}
	for _, line := range strings.FieldsFunc(raw, func(r rune) bool { return r == '\r' || r == '\n' }) {
		line = strings.TrimSpace(line)
		if line == "" || line == cmd {
			continue
		}
		resp.Lines = append(resp.Lines, line)
		if m := statusLinePattern.FindStringSubmatch(line); m != nil {
			resp.Status = &Status{Code: m[1], Text: m[2]}
		}
	}
	return resp
}

// Err returns a DeviceFault carrying the controller's own text when the status
// line reports a failure. A missing status line is not an error.
func (r Response) Err() error {
	if r.Status == nil || r.Status.OK() {
		return nil
	}
	return faults.Wrap(faults.ErrDeviceFault, "controller", r.Command, r.Status.String(), nil)
}

// Payload returns the text of a successful status line. Queries use it to
// extract their answer.
func (r Response) Payload() (string, error) {
	if r.Status != nil && !r.Status.OK() {
		return "", r.Err()
	}
	m := readyPattern.FindStringSubmatch(r.Raw)
	if m == nil {
		return "", faults.Wrap(faults.ErrProtocolParse, "protocol", r.Command, "no status payload in response", nil)
	}
	return m[1], nil
}

// Position extracts the coordinate line.
func (r Response) Position() (arm.Position, error) {
	pos, ok, err := arm.FindPosition(r.Raw)
	if err != nil {
		return arm.Position{}, faults.Wrap(faults.ErrProtocolParse, "protocol", r.Command, "malformed coordinates", err)
	}
	if !ok {
		return arm.Position{}, faults.Wrap(faults.ErrProtocolParse, "protocol", r.Command, "no coordinates in response", nil)
	}
	return pos, nil
}

// Ready reports whether the response contains a "0000 <text>" status and
// returns the text.
func (r Response) Ready() (string, bool) {
	m := readyPattern.FindStringSubmatch(r.Raw)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func trimCommand(command string) string {
	return strings.TrimRight(command, "\r\n")
}
