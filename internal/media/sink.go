package media

import (
	"errors"
	"io"
	"log"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// PlaybackSink plays one remote participant's audio. SetMuted is the
// deafen path: it silences playback locally without touching what is
// sent to or received from anyone.
type PlaybackSink interface {
	WriteRTP(*rtp.Packet) error
	SetMuted(bool)
	Close() error
}

// SinkFactory builds the playback sink for a participant. The default is
// DiscardSink; an embedder with a real audio output swaps its own in.
type SinkFactory func(participantID string) PlaybackSink

// DiscardSink drops every packet. Stands in where no audio device is
// wired (headless runs, tests).
type DiscardSink struct {
	mu    sync.Mutex
	muted bool
	n     int
}

func NewDiscardSink(string) PlaybackSink { return &DiscardSink{} }

func (s *DiscardSink) WriteRTP(*rtp.Packet) error {
	s.mu.Lock()
	if !s.muted {
		s.n++
	}
	s.mu.Unlock()
	return nil
}

func (s *DiscardSink) SetMuted(m bool) {
	s.mu.Lock()
	s.muted = m
	s.mu.Unlock()
}

func (s *DiscardSink) Close() error { return nil }

// PacketCount returns how many unmuted packets were written.
func (s *DiscardSink) PacketCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// SinkSet owns the per-participant playback sinks.
type SinkSet struct {
	factory SinkFactory

	mu       sync.Mutex
	sinks    map[string]PlaybackSink
	deafened bool
}

func NewSinkSet(factory SinkFactory) *SinkSet {
	if factory == nil {
		factory = NewDiscardSink
	}
	return &SinkSet{factory: factory, sinks: make(map[string]PlaybackSink)}
}

// Bind returns the sink for a participant, creating it on first use. A
// sink created while deafened starts muted.
func (s *SinkSet) Bind(participantID string) PlaybackSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	sink, ok := s.sinks[participantID]
	if !ok {
		sink = s.factory(participantID)
		sink.SetMuted(s.deafened)
		s.sinks[participantID] = sink
	}
	return sink
}

// Remove closes and drops a participant's sink.
func (s *SinkSet) Remove(participantID string) {
	s.mu.Lock()
	sink, ok := s.sinks[participantID]
	delete(s.sinks, participantID)
	s.mu.Unlock()
	if ok {
		_ = sink.Close()
	}
}

// SetDeafened mutes or unmutes every sink, now and for sinks bound later.
func (s *SinkSet) SetDeafened(d bool) {
	s.mu.Lock()
	s.deafened = d
	sinks := make([]PlaybackSink, 0, len(s.sinks))
	for _, sink := range s.sinks {
		sinks = append(sinks, sink)
	}
	s.mu.Unlock()
	for _, sink := range sinks {
		sink.SetMuted(d)
	}
}

// Close closes every sink.
func (s *SinkSet) Close() {
	s.mu.Lock()
	sinks := make([]PlaybackSink, 0, len(s.sinks))
	for _, sink := range s.sinks {
		sinks = append(sinks, sink)
	}
	s.sinks = make(map[string]PlaybackSink)
	s.mu.Unlock()
	for _, sink := range sinks {
		_ = sink.Close()
	}
}

// PumpAudio copies RTP from an inbound track into a playback sink until
// the track ends. Run it on its own goroutine per inbound audio track.
func PumpAudio(tr *webrtc.TrackRemote, sink PlaybackSink) {
	for {
		pkt, _, err := tr.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("MEDIA: audio pump ended: %v", err)
			}
			return
		}
		if err := sink.WriteRTP(pkt); err != nil {
			return
		}
	}
}
