package audio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// CaptureDevice abstracts the microphone. Implementations block in Read
// until a frame of samples is available.
type CaptureDevice interface {
	// Read fills buf with captured samples and returns the count.
	Read(buf []int16) (int, error)

	// Close releases the device; pending Reads fail.
	Close() error
}

// PlaybackDevice abstracts the speaker.
type PlaybackDevice interface {
	// Write queues samples for playback.
	Write(samples []int16) error

	// Close releases the device.
	Close() error
}

// Sender is the slice of the mesh the pipeline needs for outbound audio.
type Sender interface {
	SendAudioData(payload []byte, destinationID string) error
}

// ErrPipelineRunning is returned by Start on a running pipeline.
var ErrPipelineRunning = errors.New("audio: pipeline already running")

// Pipeline connects a capture device to the mesh and the mesh back to a
// playback device through a codec. One pipeline per session.
type Pipeline struct {
	codec    Codec
	capture  CaptureDevice
	playback PlaybackDevice
	sender   Sender

	// FrameSize is the number of samples captured per outbound frame.
	frameSize int

	// destination is the target node ID, or empty for fan-out to all.
	destination string

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewPipeline wires the collaborators together. frameSize samples are read
// per capture cycle; destination may be empty for broadcast.
func NewPipeline(codec Codec, capture CaptureDevice, playback PlaybackDevice, sender Sender, frameSize int, destination string) *Pipeline {
	if frameSize <= 0 || frameSize > MaxSampleCount {
		frameSize = 960 // 20ms at 48kHz
	}
	return &Pipeline{
		codec:       codec,
		capture:     capture,
		playback:    playback,
		sender:      sender,
		frameSize:   frameSize,
		destination: destination,
	}
}

// Start launches the capture loop. The returned error only covers startup;
// per-frame failures are logged and skipped.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrPipelineRunning
	}
	p.running = true

	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.captureLoop(ctx)

	slog.Info("audio pipeline started",
		"codec", p.codec.Name(),
		"frame_size", p.frameSize,
		"destination", p.destination,
	)
	return nil
}

// Stop closes the capture device and waits for the loop to exit.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.capture.Close()
	p.wg.Wait()
}

// captureLoop reads frames, encodes and sends them until the device or
// the context stops it.
func (p *Pipeline) captureLoop(ctx context.Context) {
	defer p.wg.Done()

	buf := make([]int16, p.frameSize)
	for {
		if ctx.Err() != nil {
			return
		}

		n, err := p.capture.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("audio capture failed, stopping pipeline", "error", err)
			return
		}
		if n == 0 {
			continue
		}

		payload, err := p.codec.Encode(buf[:n])
		if err != nil {
			slog.Warn("audio encode failed", "error", err)
			continue
		}

		if err := p.sender.SendAudioData(payload, p.destination); err != nil {
			slog.Debug("audio send failed", "error", err)
		}
	}
}

// OnAudioData is the mesh-facing sink: decode and play. Errors are logged
// and the frame dropped; a bad frame never disturbs the listener loop.
func (p *Pipeline) OnAudioData(payload []byte, sourceID string) {
	samples, err := p.codec.Decode(payload)
	if err != nil {
		slog.Warn("audio decode failed",
			"source", sourceID,
			"size", len(payload),
			"error", err,
		)
		return
	}

	if err := p.playback.Write(samples); err != nil {
		slog.Warn("audio playback failed", "error", err)
	}
}
