// Package config loads the YAML configuration of the pattrns-play command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/cbegin/pattrns-go/internal/audio"
	"github.com/cbegin/pattrns-go/internal/event"
	"github.com/cbegin/pattrns-go/internal/logging"
	"github.com/cbegin/pattrns-go/internal/player"
	"github.com/cbegin/pattrns-go/internal/script"
	"github.com/cbegin/pattrns-go/internal/timebase"
)

type Config struct {
	Folder        string         `yaml:"folder"`
	SampleRate    uint32         `yaml:"sample_rate"`
	BPM           float32        `yaml:"bpm"`
	BeatsPerBar   uint32         `yaml:"beats_per_bar"`
	PhraseBars    float64        `yaml:"phrase_bars"`
	Output        string         `yaml:"output"`
	BufferSize    time.Duration  `yaml:"buffer_size"`
	Gain          float32        `yaml:"gain"`
	Preload       time.Duration  `yaml:"preload"`
	NewNoteAction string         `yaml:"new_note_action"`
	FadeOut       time.Duration  `yaml:"fade_out"`
	RootNote      string         `yaml:"root_note"`
	ScriptTimeout time.Duration  `yaml:"script_timeout"`
	ShowEvents    bool           `yaml:"show_events"`
	MIDIInput     string         `yaml:"midi_input"`
	Log           logging.Config `yaml:"log"`
}

func Default() Config {
	return Config{
		Folder:        ".",
		SampleRate:    44100,
		BPM:           124,
		BeatsPerBar:   4,
		PhraseBars:    4,
		Output:        audio.OutputEbiten,
		BufferSize:    50 * time.Millisecond,
		Gain:          1,
		Preload:       player.DefaultPreload,
		NewNoteAction: "off",
		FadeOut:       100 * time.Millisecond,
		RootNote:      "c5",
		ScriptTimeout: script.DefaultTimeout,
		Log:           logging.Config{Level: "info"},
	}
}

// Load reads path on top of the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var err error
	if _, e := c.TimeBase(); e != nil {
		err = multierr.Append(err, e)
	}
	if c.PhraseBars <= 0 {
		err = multierr.Append(err, fmt.Errorf("phrase_bars must be positive, got %v", c.PhraseBars))
	}
	if c.Preload < 0 || c.FadeOut < 0 || c.BufferSize < 0 || c.ScriptTimeout < 0 {
		err = multierr.Append(err, errors.New("durations must not be negative"))
	}
	if c.Gain < 0 {
		err = multierr.Append(err, fmt.Errorf("gain must not be negative, got %v", c.Gain))
	}
	switch c.Output {
	case audio.OutputEbiten, audio.OutputOto:
	default:
		err = multierr.Append(err, fmt.Errorf("invalid output %q (expected %s|%s)", c.Output, audio.OutputEbiten, audio.OutputOto))
	}
	if _, e := c.Action(); e != nil {
		err = multierr.Append(err, e)
	}
	if _, e := c.Root(); e != nil {
		err = multierr.Append(err, e)
	}
	if _, e := logging.ParseLevel(c.Log.Level); e != nil {
		err = multierr.Append(err, e)
	}
	return err
}

func (c Config) TimeBase() (timebase.TimeBase, error) {
	return timebase.New(c.BPM, c.BeatsPerBar, c.SampleRate)
}

func (c Config) Action() (player.NewNoteAction, error) {
	return player.ParseNewNoteAction(c.NewNoteAction, c.FadeOut)
}

func (c Config) Root() (event.Note, error) {
	note, err := event.ParseNote(c.RootNote)
	if err != nil {
		return note, err
	}
	if !note.IsNoteOn() {
		return note, fmt.Errorf("root_note must be a note, got %q", c.RootNote)
	}
	return note, nil
}
