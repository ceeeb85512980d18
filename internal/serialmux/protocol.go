package serialmux

import (
	"math"
	"strconv"
	"strings"
	"sync/atomic"
)

// EncodeDriveCommand renders a drive command as one wire line:
//
//	S:<steering>;T:<throttle>\n
//
// Both values have exactly three fractional digits, '.' as the decimal point
// and an optional leading '-'. Rounding is half-up on the shortest decimal
// form of the value, so -0.4195 encodes as -0.420.
func EncodeDriveCommand(steering, throttle float64) string {
	var b strings.Builder
	b.Grow(20)
	b.WriteString("S:")
	b.WriteString(formatFixed3(steering))
	b.WriteString(";T:")
	b.WriteString(formatFixed3(throttle))
	b.WriteByte('\n')
	return b.String()
}

// formatFixed3 formats v with three decimals. NaN and Inf are written as
// 0.000 so a bad value stops the robot instead of producing a line the
// controller cannot parse. Negative zero is written without a sign.
func formatFixed3(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	neg := v < 0
	s := strconv.FormatFloat(math.Abs(v), 'f', -1, 64)
	intPart, frac, _ := strings.Cut(s, ".")
	for len(frac) < 4 {
		frac += "0"
	}

	digits := []byte(intPart + frac[:3])
	if frac[3] >= '5' {
		i := len(digits) - 1
		for ; i >= 0; i-- {
			if digits[i] < '9' {
				digits[i]++
				break
			}
			digits[i] = '0'
		}
		if i < 0 {
			digits = append([]byte{'1'}, digits...)
		}
	}

	n := len(digits)
	out := string(digits[:n-3]) + "." + string(digits[n-3:])
	if neg && out != "0.000" {
		return "-" + out
	}
	return out
}

// Link is the write side of the drive link as seen by the control loop.
type Link interface {
	IsConnected() bool
	WriteLine([]byte) error
}

// ChannelStats counts what happened to drive commands handed to a
// CommandChannel.
type ChannelStats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"` // link not connected
	Failed  uint64 `json:"failed"`  // write error
}

// CommandChannel encodes drive commands and writes them to a Link. It is
// fire-and-forget: nothing is queued or retried, and a newer command always
// supersedes an older one.
type CommandChannel struct {
	link Link

	sent    atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewCommandChannel returns a channel writing to link.
func NewCommandChannel(link Link) *CommandChannel {
	return &CommandChannel{link: link}
}

// Send writes one drive command and reports whether it reached the port.
// When the link is not connected the command is dropped silently. Write
// errors are logged and swallowed so the frame loop never stalls on the link.
func (c *CommandChannel) Send(steering, throttle float64) bool {
	if c.link == nil || !c.link.IsConnected() {
		c.dropped.Add(1)
		return false
	}
	line := EncodeDriveCommand(steering, throttle)
	if err := c.link.WriteLine([]byte(line)); err != nil {
		c.failed.Add(1)
		logf("write failed for %q: %v", strings.TrimSuffix(line, "\n"), err)
		return false
	}
	c.sent.Add(1)
	return true
}

// Stats returns a snapshot of the counters.
func (c *CommandChannel) Stats() ChannelStats {
	return ChannelStats{
		Sent:    c.sent.Load(),
		Dropped: c.dropped.Load(),
		Failed:  c.failed.Load(),
	}
}
