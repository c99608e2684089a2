// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package transport

import (
	"fmt"
	"io"

	"github.com/aplane-algo/icsign/internal/fsutil"
)

// DefaultOutputFile is where messages are written when no path is given.
const DefaultOutputFile = "message.json"

// Message is anything captured to a Sink.
type Message interface {
	JSON() ([]byte, error)
}

// Sink receives captured messages.
type Sink interface {
	Capture(m Message) error
}

// FileSink writes each message to Path atomically, replacing any previous one.
type FileSink struct {
	Path string
}

// Capture implements Sink.
func (s FileSink) Capture(m Message) error {
	data, err := m.JSON()
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}
	path := s.Path
	if path == "" {
		path = DefaultOutputFile
	}
	if err := fsutil.WriteFile(path, append(data, '\n'), fsutil.MessageFilePerm); err != nil {
		return err
	}
	return nil
}

// WriterSink writes each message to W followed by a newline.
type WriterSink struct {
	W io.Writer
}

// Capture implements Sink.
func (s WriterSink) Capture(m Message) error {
	data, err := m.JSON()
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}
	_, err = s.W.Write(append(data, '\n'))
	return err
}

// Compile-time interface checks
var (
	_ Sink = FileSink{}
	_ Sink = WriterSink{}
)
