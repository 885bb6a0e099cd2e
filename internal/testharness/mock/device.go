// Package mock provides a scripted AT device and a recording host for testing.
package mock

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/atcase/atcase-go/internal/testharness/loader"
	"github.com/atcase/atcase-go/pkg/transport"
)

// Rule maps a request to the lines the device answers with.
type Rule struct {
	// Match selects requests. It is a substring unless Regex is set.
	Match string `yaml:"match"`

	// Regex makes Match a regular expression.
	Regex bool `yaml:"regex,omitempty"`

	// Reply lines are emitted after Delay. An empty reply means the
	// request is swallowed.
	Reply []string `yaml:"reply,omitempty"`
	Delay loader.Duration `yaml:"delay,omitempty"`

	// URCs are emitted URCDelay after the reply.
	URCs     []string        `yaml:"urcs,omitempty"`
	URCDelay loader.Duration `yaml:"urc_delay,omitempty"`

	// Times limits how often the rule applies (0 means always).
	Times int `yaml:"times,omitempty"`
}

type rule struct {
	Rule
	re   *regexp2.Regexp
	used int
}

func (r *rule) matches(req string) bool {
	if r.Times > 0 && r.used >= r.Times {
		return false
	}
	if r.re != nil {
		ok, err := r.re.MatchString(req)
		return err == nil && ok
	}
	return strings.Contains(req, r.Match)
}

// Device represents a mock AT device. It satisfies the engine transport
// directly and can serve a byte stream.
type Device struct {
	// ID is the device identifier.
	ID string

	// Echo makes the device repeat every request before answering.
	Echo bool

	// Handlers are callbacks for specific operations.
	Handlers DeviceHandlers

	lines    *transport.Broadcaster
	logger   *slog.Logger
	greeting []string

	mu       sync.Mutex
	rules    []*rule
	received []string
	closed   bool

	wg   sync.WaitGroup
	done chan struct{}
}

// DeviceHandlers holds callbacks for device operations.
type DeviceHandlers struct {
	// OnRequest is called for every request before the rules. Returning
	// handled=true replaces the rule lookup with the given reply.
	OnRequest func(req string) (reply []string, handled bool)
}

// NewDevice creates a new mock device with the given rules.
func NewDevice(id string, rules ...Rule) *Device {
	d := &Device{
		ID:     id,
		lines:  transport.NewBroadcaster(),
		logger: slog.New(slog.DiscardHandler),
		done:   make(chan struct{}),
	}
	for _, r := range rules {
		if err := d.AddRule(r); err != nil {
			panic(err)
		}
	}
	return d
}

// SetLogger sets the operational logger.
func (d *Device) SetLogger(logger *slog.Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// AddRule appends a rule. Rules are tried in order.
func (d *Device) AddRule(r Rule) error {
	if r.Match == "" {
		return fmt.Errorf("%w: empty match", ErrInvalidRule)
	}
	compiled := &rule{Rule: r}
	if r.Regex {
		re, err := regexp2.Compile(r.Match, regexp2.None)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidRule, r.Match, err)
		}
		compiled.re = re
	}
	d.mu.Lock()
	d.rules = append(d.rules, compiled)
	d.mu.Unlock()
	return nil
}

// Subscribe returns the lines the device emits from now on.
func (d *Device) Subscribe(buffer int) (<-chan transport.Line, func()) {
	return d.lines.Subscribe(buffer)
}

// Send delivers raw request bytes to the device. Each CR or LF
// terminated chunk is one request.
func (d *Device) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ErrDeviceNotConnected
	}

	for _, req := range strings.FieldsFunc(string(data), isTerminator) {
		d.Handle(req)
	}
	return nil
}

func isTerminator(r rune) bool { return r == '\r' || r == '\n' }

// Handle processes one request and emits its reply.
func (d *Device) Handle(req string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.received = append(d.received, req)
	var matched *rule
	for _, r := range d.rules {
		if r.matches(req) {
			r.used++
			matched = r
			break
		}
	}
	d.mu.Unlock()

	if d.Echo {
		d.Emit(req)
	}

	var reply, urcs []string
	var delay, urcDelay time.Duration
	handled := false
	if d.Handlers.OnRequest != nil {
		reply, handled = d.Handlers.OnRequest(req)
	}
	if !handled {
		if matched == nil {
			d.logger.Debug("unmatched request", "device", d.ID, "request", req)
			return
		}
		reply, urcs = matched.Reply, matched.URCs
		delay, urcDelay = matched.Delay.D(), matched.URCDelay.D()
	}

	if delay <= 0 && urcDelay <= 0 {
		d.emitAll(reply)
		d.emitAll(urcs)
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()
	go func() {
		defer d.wg.Done()
		if !d.wait(delay) {
			return
		}
		d.emitAll(reply)
		if !d.wait(urcDelay) {
			return
		}
		d.emitAll(urcs)
	}()
}

func (d *Device) wait(delay time.Duration) bool {
	if delay <= 0 {
		return true
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-d.done:
		return false
	}
}

func (d *Device) emitAll(lines []string) {
	for _, l := range lines {
		d.Emit(l)
	}
}

// Emit sends an unsolicited line to every subscriber.
func (d *Device) Emit(line string) {
	d.lines.Publish(transport.Line{Text: line, Timestamp: time.Now()})
}

// Received returns the requests received so far.
func (d *Device) Received() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.received))
	copy(out, d.received)
	return out
}

// Reset clears the received requests and the rule use counters.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.received = d.received[:0]
	for _, r := range d.rules {
		r.used = 0
	}
}

// Close disconnects the device. Pending delayed replies are dropped and
// subscriber channels are closed.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.done)
	d.mu.Unlock()

	d.wg.Wait()
	d.lines.Close()
	return nil
}
