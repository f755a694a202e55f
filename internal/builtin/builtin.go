// Package builtin ships a few small algorithms so algomgr is usable without
// any plugins. Results are reported as progress messages and, for direct
// handles, in the worker's output properties.
package builtin

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zjrosen/algomgr/internal/algorithm"
	"github.com/zjrosen/algomgr/internal/catalog"
)

// ErrRequestedFailure is returned by Fail.
var ErrRequestedFailure = errors.New("requested failure")

// Constructors returns a constructor for every built-in algorithm.
func Constructors() []catalog.Constructor {
	return []catalog.Constructor{
		func() algorithm.Worker { return algorithm.New(&Sleep{}) },
		func() algorithm.Worker { return algorithm.New(&Sum{}) },
		func() algorithm.Worker { return algorithm.New(&Echo{}) },
		func() algorithm.Worker { return algorithm.New(&EchoV2{}) },
		func() algorithm.Worker { return algorithm.New(&Fail{}) },
	}
}

// Register subscribes every built-in algorithm to cat.
func Register(cat *catalog.Catalog) error {
	for _, ctor := range Constructors() {
		if err := cat.SubscribeWorker(ctor); err != nil {
			return fmt.Errorf("register builtin: %w", err)
		}
	}
	return nil
}

// Sleep waits for a configurable duration in small cancellable steps.
type Sleep struct{}

func (*Sleep) Name() string     { return "Sleep" }
func (*Sleep) Version() int     { return 1 }
func (*Sleep) Category() string { return "Utility" }
func (*Sleep) Summary() string {
	return "Waits for `duration`, reporting progress every `step`. Cancelling stops it at the next step."
}

func (*Sleep) Declare(p *algorithm.Properties) {
	p.Declare("duration", "1s", "total time to wait")
	p.Declare("step", "100ms", "progress interval")
}

func (*Sleep) Exec(rc *algorithm.RunContext) error {
	total, err := rc.Properties().Duration("duration")
	if err != nil {
		return err
	}
	step, err := rc.Properties().Duration("step")
	if err != nil {
		return err
	}
	if step <= 0 {
		step = total
	}

	var waited time.Duration
	for waited < total {
		d := min(step, total-waited)
		if err := rc.Sleep(d); err != nil {
			return err
		}
		waited += d
		rc.Progress(float64(waited)/float64(total), fmt.Sprintf("slept %s of %s", waited, total))
	}
	return nil
}

// Sum adds a comma separated list of numbers.
type Sum struct{}

func (*Sum) Name() string     { return "Sum" }
func (*Sum) Version() int     { return 1 }
func (*Sum) Category() string { return "Arithmetic" }
func (*Sum) Summary() string {
	return "Adds the comma separated numbers in `values` and stores the total in `result`."
}

func (*Sum) Declare(p *algorithm.Properties) {
	p.Declare("values", "", "comma separated numbers", algorithm.Mandatory())
	p.Declare("result", "", "output: the sum")
}

func (*Sum) Exec(rc *algorithm.RunContext) error {
	var total float64
	for _, field := range strings.Split(rc.Properties().String("values"), ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return fmt.Errorf("values: %q is not a number", field)
		}
		total += v
	}

	result := strconv.FormatFloat(total, 'g', -1, 64)
	if err := rc.Properties().Set("result", result); err != nil {
		return err
	}
	rc.Progress(1, "result="+result)
	return nil
}

// Echo reports its message.
type Echo struct{}

func (*Echo) Name() string     { return "Echo" }
func (*Echo) Version() int     { return 1 }
func (*Echo) Category() string { return "Utility\\Text" }
func (*Echo) Summary() string  { return "Reports `message` unchanged." }

func (*Echo) Declare(p *algorithm.Properties) {
	p.Declare("message", "hello", "text to report")
	p.Declare("output", "", "output: the reported text")
}

func (*Echo) Exec(rc *algorithm.RunContext) error {
	msg := rc.Properties().String("message")
	if err := rc.Properties().Set("output", msg); err != nil {
		return err
	}
	rc.Progress(1, msg)
	return nil
}

// EchoV2 reports its message `repeat` times.
type EchoV2 struct{ Echo }

func (*EchoV2) Version() int { return 2 }
func (*EchoV2) Summary() string {
	return "Reports `message` `repeat` times, joined by `separator`."
}

func (e *EchoV2) Declare(p *algorithm.Properties) {
	e.Echo.Declare(p)
	p.Declare("repeat", "1", "number of repetitions")
	p.Declare("separator", " ", "text between repetitions")
}

func (*EchoV2) Exec(rc *algorithm.RunContext) error {
	n, err := rc.Properties().Int("repeat")
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("repeat: must not be negative, got %d", n)
	}

	parts := make([]string, 0, n)
	for i := range n {
		if err := rc.Checkpoint(); err != nil {
			return err
		}
		parts = append(parts, rc.Properties().String("message"))
		rc.Progress(float64(i+1)/float64(n), "")
	}
	out := strings.Join(parts, rc.Properties().String("separator"))
	if err := rc.Properties().Set("output", out); err != nil {
		return err
	}
	rc.Progress(1, out)
	return nil
}

// Fail always fails.
type Fail struct{}

func (*Fail) Name() string     { return "Fail" }
func (*Fail) Version() int     { return 1 }
func (*Fail) Category() string { return "Diagnostics" }
func (*Fail) Summary() string  { return "Fails every run with `reason`. Useful for testing error paths." }

func (*Fail) Declare(p *algorithm.Properties) {
	p.Declare("reason", "failure requested", "error message")
}

func (*Fail) Exec(rc *algorithm.RunContext) error {
	return fmt.Errorf("%w: %s", ErrRequestedFailure, rc.Properties().String("reason"))
}
