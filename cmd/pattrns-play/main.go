package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"go.uber.org/zap"

	"github.com/cbegin/pattrns-go"
	"github.com/cbegin/pattrns-go/internal/config"
	"github.com/cbegin/pattrns-go/internal/logging"
)

// silentPattern stands in for scripts which fail to compile.
const silentPattern = `return pattern { unit = "beats", pulse = {0}, event = "---" }`

var sampleExtensions = []string{".wav", ".mp3", ".ogg"}

type track struct {
	name       string
	instrument pattrns.InstrumentID
	pattern    *pattrns.Pattern
}

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		folder     = flag.String("folder", "", "folder with sample files and their .lua pattern scripts")
		bpm        = flag.Float64("bpm", 0, "tempo in beats per minute")
		output     = flag.String("output", "", "audio output: ebiten|oto")
		midiIn     = flag.String("midi-in", "", "MIDI input port which triggers new pattern instances")
		showEvents = flag.Bool("show-events", false, "log every scheduled event")
		logLevel   = flag.String("log-level", "", "log level: debug|info|warn|error")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
		render     = flag.String("render", "", "render to this WAV file instead of playing")
		seconds    = flag.Float64("seconds", 10, "length of -render in seconds")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "folder":
			cfg.Folder = *folder
		case "bpm":
			cfg.BPM = float32(*bpm)
		case "output":
			cfg.Output = *output
		case "midi-in":
			cfg.MIDIInput = *midiIn
		case "show-events":
			cfg.ShowEvents = *showEvents
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if *render != "" {
		err = renderFile(cfg, logger, *render, *seconds)
	} else {
		err = play(cfg, logger, *volume)
	}
	if err != nil {
		logger.Fatal("pattrns-play failed", zap.Error(err))
	}
}

func playerOptions(cfg config.Config, logger *zap.Logger) []pattrns.Option {
	action, _ := cfg.Action()
	root, _ := cfg.Root()
	return []pattrns.Option{
		pattrns.WithLogger(logger),
		pattrns.WithScriptTimeout(cfg.ScriptTimeout),
		pattrns.WithOutput(cfg.Output),
		pattrns.WithBufferSize(cfg.BufferSize),
		pattrns.WithGain(cfg.Gain),
		pattrns.WithNewNoteAction(action),
		pattrns.WithPreload(cfg.Preload),
		pattrns.WithSampleRootNote(root),
		pattrns.WithShowEvents(cfg.ShowEvents),
	}
}

func play(cfg config.Config, logger *zap.Logger, volume float64) error {
	tb, err := cfg.TimeBase()
	if err != nil {
		return err
	}
	opts := playerOptions(cfg, logger)
	engine, err := pattrns.NewEngine(tb, opts...)
	if err != nil {
		return err
	}
	defer engine.Close()
	pl, err := pattrns.NewPlayer(int(cfg.SampleRate), opts...)
	if err != nil {
		return err
	}
	defer pl.Close()
	pl.SetMasterVolume(volume)

	tracks, err := loadTracks(cfg.Folder, tb, engine, pl.LoadSample, logger)
	if err != nil {
		return err
	}
	build := func(trigger *pattrns.Event) pattrns.SequenceFunc {
		return func() (*pattrns.Sequence, error) {
			return newSequence(tb, cfg.PhraseBars, tracks, trigger)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MIDIInput != "" {
		stopMIDI, err := listenMIDI(cfg.MIDIInput, func(msg midi.Message) {
			trigger, ok := pattrns.TriggerEventFromMIDI(msg, nil)
			if !ok {
				return
			}
			logger.Debug("trigger", zap.String("event", trigger.String()))
			if err := pl.SwapFunc(build(trigger)); err != nil {
				logger.Warn("failed to swap sequence", zap.Error(err))
			}
		})
		if err != nil {
			return err
		}
		defer stopMIDI()
		logger.Info("listening for MIDI triggers", zap.String("port", cfg.MIDIInput))
	}

	events := pl.Watch()
	go func() {
		for ev := range events {
			logger.Debug("playback event", zap.Int("kind", ev.Kind), zap.Int("slot", ev.Slot),
				zap.Int("voice", ev.Voice), zap.Uint64("position", ev.Position))
		}
	}()
	if err := pl.PlayFunc(build(nil)); err != nil {
		return err
	}
	logger.Info("playing", zap.Int("tracks", len(tracks)), zap.Float32("bpm", tb.BeatsPerMin))

	done := make(chan error, 1)
	go func() { done <- pl.Wait() }()
	select {
	case <-ctx.Done():
		fmt.Println()
		return pl.Stop()
	case err := <-done:
		return err
	}
}

func renderFile(cfg config.Config, logger *zap.Logger, path string, seconds float64) error {
	tb, err := cfg.TimeBase()
	if err != nil {
		return err
	}
	opts := playerOptions(cfg, logger)
	engine, err := pattrns.NewEngine(tb, opts...)
	if err != nil {
		return err
	}
	defer engine.Close()
	pool := pattrns.NewSamplePool()
	tracks, err := loadTracks(cfg.Folder, tb, engine, pool.Load, logger)
	if err != nil {
		return err
	}
	seq, err := newSequence(tb, cfg.PhraseBars, tracks, nil)
	if err != nil {
		return err
	}
	start := time.Now()
	samples := pattrns.RenderSamples(seq, pool, seconds, opts...)
	if err := os.WriteFile(path, pattrns.EncodeWAVFloat32LE(samples, int(tb.SamplesPerSec), 2), 0o644); err != nil {
		return err
	}
	logger.Info("rendered", zap.String("file", path), zap.Float64("seconds", seconds), zap.Duration("took", time.Since(start)))
	return nil
}

// loadTracks pairs every sample file in folder with the .lua script of the
// same name. Samples without a script are skipped.
func loadTracks(folder string, tb pattrns.TimeBase, engine *pattrns.Engine, load func(string) (pattrns.InstrumentID, error), logger *zap.Logger) ([]track, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, err
	}
	var tracks []track
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || !slices.Contains(sampleExtensions, ext) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		scriptPath := filepath.Join(folder, name+".lua")
		if _, err := os.Stat(scriptPath); err != nil {
			logger.Info("no script for sample, skipping", zap.String("sample", entry.Name()))
			continue
		}
		id, err := load(filepath.Join(folder, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("load sample %s: %w", entry.Name(), err)
		}
		p, err := engine.NewPatternFromFile(tb, &id, scriptPath)
		if err != nil {
			logger.Warn("failed to compile script, playing silence", zap.String("script", scriptPath), zap.Error(err))
			if p, err = engine.NewPatternFromString(tb, &id, silentPattern, name); err != nil {
				return nil, err
			}
		}
		tracks = append(tracks, track{name: name, instrument: id, pattern: p})
		logger.Debug("loaded track", zap.String("name", name), zap.Uint32("instrument", uint32(id)))
	}
	if len(tracks) == 0 {
		return nil, errors.New("no sample/script pairs found in " + folder)
	}
	return tracks, nil
}

// newSequence plays fresh instances of all tracks in parallel, so the loaded
// patterns stay untouched and can be instantiated again on every trigger.
func newSequence(tb pattrns.TimeBase, bars float64, tracks []track, trigger *pattrns.Event) (*pattrns.Sequence, error) {
	slots := make([]pattrns.Slot, 0, len(tracks))
	for _, t := range tracks {
		instance, err := t.pattern.NewInstance(tb)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.name, err)
		}
		if trigger != nil {
			if err := instance.SetTriggerEvent(trigger); err != nil {
				return nil, fmt.Errorf("%s: %w", t.name, err)
			}
		}
		slots = append(slots, pattrns.PatternSlot(instance))
	}
	return pattrns.NewSequence(tb, pattrns.NewPhrase(tb, slots, pattrns.Bars(bars))), nil
}
