package script

import (
	"errors"
	"strings"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/cbegin/pattrns-go/internal/event"
	"github.com/cbegin/pattrns-go/internal/parameter"
	"github.com/cbegin/pattrns-go/internal/timebase"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	tb, err := timebase.New(120, 4, 44100)
	if err != nil {
		t.Fatal(err)
	}
	e := NewEngine(tb, opts...)
	t.Cleanup(e.Close)
	return e
}

func loadCallback(t *testing.T, e *Engine, src string) *Callback {
	t.Helper()
	fn, err := e.state.Load(strings.NewReader(src), "test")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ret, err := e.call(fn)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	f, ok := ret.(*lua.LFunction)
	if !ok {
		t.Fatalf("script returned %s, want function", ret.Type())
	}
	return e.NewCallback(f)
}

func evalNumber(t *testing.T, c *Callback) float64 {
	t.Helper()
	v, err := c.Evaluate()
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	n, ok := v.(lua.LNumber)
	if !ok {
		t.Fatalf("Evaluate returned %s, want number", v.Type())
	}
	return float64(n)
}

func TestPlainFunctionResetIsNoop(t *testing.T) {
	e := newTestEngine(t)
	c := loadCallback(t, e, `return function(context) return context.step * 2 end`)

	run := func() []float64 {
		var got []float64
		for i := 0; i < 4; i++ {
			c.Context().SetStep(i)
			got = append(got, evalNumber(t, c))
		}
		return got
	}
	first := run()
	if stateful, known := c.IsStateful(); !known || stateful {
		t.Fatalf("IsStateful = %v, %v; want false, true", stateful, known)
	}
	if err := c.Reset(); err != nil {
		t.Fatal(err)
	}
	second := run()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("after reset got %v, want %v", second, first)
		}
	}
	if first[3] != 8 {
		t.Fatalf("step 4 result = %v, want 8", first[3])
	}
}

func TestGeneratorResetRestarts(t *testing.T) {
	e := newTestEngine(t)
	c := loadCallback(t, e, `
		return function(context)
			local n = 0
			return function(context)
				n = n + 1
				return n
			end
		end`)
	if _, known := c.IsStateful(); known {
		t.Fatalf("statefulness must be unknown before the first call")
	}
	for want := 1.0; want <= 3; want++ {
		if got := evalNumber(t, c); got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if stateful, _ := c.IsStateful(); !stateful {
		t.Fatalf("generator not detected")
	}
	if err := c.Reset(); err != nil {
		t.Fatal(err)
	}
	if got := evalNumber(t, c); got != 1 {
		t.Fatalf("after reset got %v, want 1", got)
	}
}

func TestGeneratorResetRequiresFunction(t *testing.T) {
	e := newTestEngine(t)
	c := loadCallback(t, e, `
		local calls = 0
		return function(context)
			calls = calls + 1
			if calls > 1 then return 42 end
			return function(context) return 1 end
		end`)
	evalNumber(t, c)
	err := c.Reset()
	if !errors.Is(err, ErrNotAGenerator) {
		t.Fatalf("Reset error = %v, want ErrNotAGenerator", err)
	}
}

func TestDuplicateHasIndependentContext(t *testing.T) {
	e := newTestEngine(t)
	c := loadCallback(t, e, `return function(context) return context.step end`)
	d := c.Duplicate()
	c.Context().SetStep(4)
	d.Context().SetStep(9)
	if got := evalNumber(t, c); got != 5 {
		t.Fatalf("original step = %v, want 5", got)
	}
	if got := evalNumber(t, d); got != 10 {
		t.Fatalf("duplicate step = %v, want 10", got)
	}
}

func TestDuplicateStartsWithFreshContext(t *testing.T) {
	e := newTestEngine(t)
	c := loadCallback(t, e, `
		return function(context)
			if context.trigger then return -1 end
			return context.step * 1000 + context.beats_per_min
		end`)
	trigger := event.NewNoteEvents()
	c.Context().SetTriggerEvent(&trigger)
	c.Context().SetStep(4)

	d := c.Duplicate()
	if got := evalNumber(t, d); got != 1120 {
		t.Fatalf("duplicate = %v, want step 1 at 120 bpm without trigger", got)
	}
	if got := evalNumber(t, c); got != -1 {
		t.Fatalf("original = %v, want its trigger kept", got)
	}
}

func TestContextFields(t *testing.T) {
	e := newTestEngine(t)
	c := loadCallback(t, e, `
		return function(context)
			return table.concat({context.playback, context.beats_per_min, context.beats_per_bar,
				context.samples_per_sec, context.pulse_step, context.pulse_time_step,
				context.pulse_value, context.step}, " ")
		end`)
	ctx := c.Context()
	ctx.SetPlaybackState(Seeking)
	ctx.SetPulse(0.5, 1)
	ctx.SetPulseStep(2, 1.5)
	ctx.SetStep(0)
	v, err := c.Evaluate()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := v.String(), "seeking 120 4 44100 3 1.5 0.5 1"; got != want {
		t.Fatalf("context = %q, want %q", got, want)
	}
}

func TestContextIsReadOnly(t *testing.T) {
	e := newTestEngine(t)
	c := loadCallback(t, e, `return function(context) context.step = 2 end`)
	_, err := c.Evaluate()
	if !errors.Is(err, ErrReadOnlyContext) {
		t.Fatalf("write error = %v, want ErrReadOnlyContext", err)
	}
	var serr *Error
	if !errors.As(err, &serr) || !strings.HasPrefix(serr.Callback, "test:") {
		t.Fatalf("expected *Error naming the callback, got %v", err)
	}

	c = loadCallback(t, e, `return function(context) return context.nope end`)
	if _, err := c.Evaluate(); err == nil || !strings.Contains(err.Error(), "undefined field 'nope' in context") {
		t.Fatalf("undefined field error = %v", err)
	}
}

func TestContextParameters(t *testing.T) {
	e := newTestEngine(t)
	gate, _ := parameter.NewBoolean("gate", true, "", "")
	mode, _ := parameter.NewEnum("mode", "up", []string{"up", "down"}, "", "")
	set, err := parameter.NewSet(gate, mode)
	if err != nil {
		t.Fatal(err)
	}
	c := loadCallback(t, e, `
		return function(context)
			return tostring(context.parameter.gate) .. " " .. context.parameter.mode
		end`)
	c.Context().SetParameters(set)
	if v, err := c.Evaluate(); err != nil || v.String() != "true up" {
		t.Fatalf("got %v, %v", v, err)
	}
	// host writes are visible on the next call
	_ = set.SetValue("gate", 0)
	_ = set.SetValue("mode", 1)
	if v, err := c.Evaluate(); err != nil || v.String() != "false down" {
		t.Fatalf("got %v, %v", v, err)
	}

	c = loadCallback(t, e, `return function(context) return context.parameter.missing end`)
	c.Context().SetParameters(set)
	if _, err := c.Evaluate(); err == nil || !strings.Contains(err.Error(), "undefined parameter id 'missing'") {
		t.Fatalf("unknown parameter error = %v", err)
	}
}

func TestTriggerRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	c := loadCallback(t, e, `return function(context) return context.trigger.notes end`)
	n := event.NoteEvent{Note: event.NoteA4, Volume: 0.5, Delay: 0.25}
	trigger := event.NewNoteEvents(&n, nil)
	c.Context().SetTriggerEvent(&trigger)
	v, err := c.Evaluate()
	if err != nil {
		t.Fatal(err)
	}
	got, err := EventFromValue(v)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(trigger) {
		t.Fatalf("trigger round trip = %v, want %v", got, trigger)
	}
}

func TestTimeout(t *testing.T) {
	e := newTestEngine(t, WithTimeout(50*time.Millisecond))
	c := loadCallback(t, e, `return function(context) while true do end end`)
	_, err := c.Evaluate()
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	// the engine stays usable
	c = loadCallback(t, e, `return function(context) return 1 end`)
	if got := evalNumber(t, c); got != 1 {
		t.Fatalf("got %v after timeout", got)
	}
}

func TestErrorQueueAndStatus(t *testing.T) {
	e := newTestEngine(t)
	c := loadCallback(t, e, `return function(context) error("boom") end`)
	_, err := c.Evaluate()
	c.HandleError(err)
	c.HandleError(err)
	q := e.Errors()
	if q.Len() != 2 || q.First() == nil {
		t.Fatalf("queue len = %d", q.Len())
	}
	if !strings.Contains(q.Err().Error(), "boom") {
		t.Fatalf("combined error = %v", q.Err())
	}
	q.Clear()
	if q.Err() != nil || q.First() != nil {
		t.Fatalf("queue not cleared")
	}

	var s Status
	if !s.Update(err) {
		t.Fatalf("first error should change status")
	}
	if s.Update(err) {
		t.Fatalf("same error should not change status")
	}
	if !s.Update(nil) || s.Message() != "" {
		t.Fatalf("nil should clear status")
	}
}
