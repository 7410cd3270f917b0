//go:build !cgo

package main

import (
	"errors"

	"gitlab.com/gomidi/midi/v2"
)

func listenMIDI(string, func(midi.Message)) (func(), error) {
	return nil, errors.New("MIDI input needs a cgo build")
}
