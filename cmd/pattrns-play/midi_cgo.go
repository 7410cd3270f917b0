//go:build cgo

package main

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

func listenMIDI(port string, handle func(midi.Message)) (func(), error) {
	in, err := midi.FindInPort(port)
	if err != nil {
		return nil, fmt.Errorf("midi input %q: %w", port, err)
	}
	stop, err := midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
		handle(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("open midi input %q: %w", port, err)
	}
	return func() {
		stop()
		midi.CloseDriver()
	}, nil
}
