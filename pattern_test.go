package pattrns

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gitlab.com/gomidi/midi/v2"

	"github.com/cbegin/pattrns-go/internal/event"
	"github.com/cbegin/pattrns-go/internal/parameter"
	"github.com/cbegin/pattrns-go/internal/script"
)

func testTimeBase(t testing.TB) TimeBase {
	t.Helper()
	tb, err := NewTimeBase(120, 4, 44100)
	if err != nil {
		t.Fatal(err)
	}
	return tb
}

func newTestEngine(t testing.TB) *Engine {
	t.Helper()
	e, err := NewEngine(testTimeBase(t))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Close)
	return e
}

func compile(t testing.TB, e *Engine, instrument *InstrumentID, src string) *Pattern {
	t.Helper()
	p, err := e.NewPatternFromString(testTimeBase(t), instrument, src, "test")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return p
}

func TestNewEngineRejectsInvalidTimeBase(t *testing.T) {
	if _, err := NewEngine(TimeBase{BeatsPerMin: 120, BeatsPerBar: 4}); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestPatternRunAndDefaultInstrument(t *testing.T) {
	e := newTestEngine(t)
	instrument := InstrumentID(3)
	p := compile(t, e, &instrument, `return pattern { unit = "1/4", event = {"c4", {key = "e4", instrument = 7}} }`)

	if got := p.SamplesPerStep(); got != 22050 {
		t.Fatalf("samples per step = %v, want 22050", got)
	}
	if got := p.StepCount(); got != 1 {
		t.Fatalf("step count = %d, want 1", got)
	}

	ev, ok, err := p.Run()
	if err != nil || !ok {
		t.Fatalf("Run() = %v, %v, %v", ev, ok, err)
	}
	if n := ev.Event.Notes[0]; n.Instrument == nil || *n.Instrument != 3 {
		t.Fatalf("note %v should use the default instrument", n)
	}
	ev, _, _ = p.Run()
	if n := ev.Event.Notes[0]; n.Instrument == nil || *n.Instrument != 7 {
		t.Fatalf("note %v should keep its own instrument", n)
	}
	if ev.Time != 22050 {
		t.Fatalf("second event at %d, want 22050", ev.Time)
	}
}

func TestPatternRunUntilAndAdvance(t *testing.T) {
	e := newTestEngine(t)
	p := compile(t, e, nil, `return pattern { unit = "1/4", event = "c4" }`)

	if err := p.AdvanceUntilTime(2 * 22050); err != nil {
		t.Fatal(err)
	}
	var times []uint64
	if err := p.RunUntilTime(4*22050, func(ev PatternEvent) { times = append(times, ev.Time) }); err != nil {
		t.Fatal(err)
	}
	if len(times) != 2 || times[0] != 2*22050 || times[1] != 3*22050 {
		t.Fatalf("times = %v, want [44100 66150]", times)
	}
}

func TestPatternScriptErrorsAreReported(t *testing.T) {
	e := newTestEngine(t)
	p := compile(t, e, nil, `
		return pattern {
			event = function(context)
				if context.step == 2 then
					error("boom")
				end
				return "c4"
			end
		}`)

	if _, _, err := p.Run(); err != nil {
		t.Fatalf("first step failed: %v", err)
	}
	ev, ok, err := p.Run()
	var serr *script.Error
	if !errors.As(err, &serr) || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v, want script error", err)
	}
	if !ok || ev.Event != nil {
		t.Fatalf("failed step should yield a rest, got %v %v", ev, ok)
	}
	if msg := e.Status(); !strings.Contains(msg, "boom") {
		t.Fatalf("status = %q, want the script error", msg)
	}

	if _, _, err := p.Run(); err != nil {
		t.Fatalf("third step failed: %v", err)
	}
	if msg := e.Status(); msg != "" {
		t.Fatalf("status = %q, want cleared after success", msg)
	}
}

func TestPatternRecoversPanics(t *testing.T) {
	e := newTestEngine(t)
	p := compile(t, e, nil, `return pattern { event = "c4" }`)
	p.SetEventTransform(func(*Event) { panic("transform exploded") })
	if _, _, err := p.Run(); !errors.Is(err, ErrInternal) || !strings.Contains(err.Error(), "transform exploded") {
		t.Fatalf("err = %v, want ErrInternal", err)
	}
}

func TestCompileErrors(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.NewPatternFromString(testTimeBase(t), nil, `return 1`, "broken"); !errors.Is(err, script.ErrNoPattern) {
		t.Fatalf("err = %v, want ErrNoPattern", err)
	}
	if e.Status() == "" {
		t.Fatal("status should keep the compile error")
	}
	if _, err := e.NewPatternFromFile(testTimeBase(t), nil, filepath.Join(t.TempDir(), "missing.lua")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNewPatternFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kick.lua")
	if err := os.WriteFile(path, []byte(`return pattern { unit = "1/8", event = "c5" }`), 0o644); err != nil {
		t.Fatal(err)
	}
	e := newTestEngine(t)
	p, err := e.NewPatternFromFile(testTimeBase(t), nil, path)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.SamplesPerStep(); got != 11025 {
		t.Fatalf("samples per step = %v, want 11025", got)
	}
}

func TestParameterValues(t *testing.T) {
	e := newTestEngine(t)
	p := compile(t, e, nil, `
		return pattern {
			parameter = { parameter.integer("offset", 0, {0, 12}) },
			event = function(context) return 48 + context.parameter.offset end
		}`)

	if params := p.Parameters(); len(params) != 1 || params[0].ID() != "offset" {
		t.Fatalf("parameters = %v", params)
	}
	if err := p.SetParameterValue("offset", 13); !errors.Is(err, parameter.ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
	if err := p.SetParameterValue("nope", 1); !errors.Is(err, parameter.ErrUnknownParameter) {
		t.Fatalf("err = %v, want ErrUnknownParameter", err)
	}
	if err := p.SetParameterValue("offset", 7); err != nil {
		t.Fatal(err)
	}
	ev, _, err := p.Run()
	if err != nil {
		t.Fatal(err)
	}
	if got := ev.Event.Notes[0].Note; got != event.Note(55) {
		t.Fatalf("note = %v, want G4", got)
	}
}

func TestNewInstanceIsResetAndIndependent(t *testing.T) {
	e := newTestEngine(t)
	p := compile(t, e, nil, `
		return pattern {
			unit = "1/4",
			parameter = { parameter.integer("offset", 0, {0, 12}) },
			event = function(context) return 48 + context.parameter.offset end
		}`)
	for i := 0; i < 3; i++ {
		if _, _, err := p.Run(); err != nil {
			t.Fatal(err)
		}
	}

	slow, err := NewTimeBase(60, 4, 44100)
	if err != nil {
		t.Fatal(err)
	}
	instance, err := p.NewInstance(slow)
	if err != nil {
		t.Fatal(err)
	}
	if err := instance.SetParameterValue("offset", 12); err != nil {
		t.Fatal(err)
	}
	ev, _, err := instance.Run()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Time != 0 {
		t.Fatalf("instance starts at %d, want 0", ev.Time)
	}
	if got := instance.SamplesPerStep(); got != 44100 {
		t.Fatalf("instance step = %v, want 44100 at 60 bpm", got)
	}
	if got := ev.Event.Notes[0].Note; got != event.NoteC5 {
		t.Fatalf("instance note = %v, want C5", got)
	}

	ev, _, _ = p.Run()
	if got := ev.Event.Notes[0].Note; got != event.NoteC4 {
		t.Fatalf("original note = %v, want C4 (parameter copied, not shared)", got)
	}
	if ev.Time != 3*22050 {
		t.Fatalf("original continues at %d, want %d", ev.Time, 3*22050)
	}
}

func TestTriggerEvent(t *testing.T) {
	e := newTestEngine(t)
	p := compile(t, e, nil, `
		return pattern {
			event = function(context)
				if context.trigger then
					return context.trigger.notes[1].key + 12
				end
				return "off"
			end
		}`)
	trigger, ok := TriggerEventFromMIDI(midi.NoteOn(0, 50, 127), nil)
	if !ok {
		t.Fatal("note-on not converted")
	}
	if err := p.SetTriggerEvent(trigger); err != nil {
		t.Fatal(err)
	}
	ev, _, err := p.Run()
	if err != nil {
		t.Fatal(err)
	}
	if got := ev.Event.Notes[0].Note; got != event.Note(62) {
		t.Fatalf("note = %v, want D5", got)
	}
}
