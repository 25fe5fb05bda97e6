package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/botsapp/voicecall-go/pkg/audio"
)

// frameMs is the capture interval. 40ms of 16 kHz mono 16-bit PCM is
// 1280 bytes per frame.
const frameMs = 40

// fileRecorder streams a raw PCM file as paced microphone frames, then
// silence until the call ends.
type fileRecorder struct {
	file   *os.File
	logger *slog.Logger
	cancel context.CancelFunc
}

func newFileRecorder(path string, logger *slog.Logger) (*fileRecorder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &fileRecorder{file: f, logger: logger}, nil
}

func (r *fileRecorder) Start(ctx context.Context) (<-chan []byte, error) {
	ctx, r.cancel = context.WithCancel(ctx)

	frameBytes := audio.CaptureRate * frameMs / 1000 * audio.BytesPerSample
	frames := make(chan []byte, 8)

	go func() {
		defer close(frames)

		ticker := time.NewTicker(frameMs * time.Millisecond)
		defer ticker.Stop()

		drained := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			frame := make([]byte, frameBytes)
			if !drained {
				n, err := io.ReadFull(r.file, frame)
				if err != nil {
					if err != io.EOF && err != io.ErrUnexpectedEOF {
						r.logger.Warn("microphone file read failed", "error", err)
					}
					drained = true
					r.logger.Info("microphone file drained, sending silence")
					for i := n; i < frameBytes; i++ {
						frame[i] = 0
					}
				}
			}

			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	return frames, nil
}

func (r *fileRecorder) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	return r.file.Close()
}

// filePlayer appends bot audio chunks to a file. With no output path the
// audio is discarded.
type filePlayer struct {
	path   string
	file   *os.File
	logger *slog.Logger
}

func newFilePlayer(path string, logger *slog.Logger) *filePlayer {
	return &filePlayer{path: path, logger: logger}
}

func (p *filePlayer) Open() error {
	if p.path == "" {
		return nil
	}
	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	p.file = f
	return nil
}

func (p *filePlayer) Feed(chunk []byte) error {
	if p.file == nil {
		return nil
	}
	_, err := p.file.Write(chunk)
	return err
}

func (p *filePlayer) Close() error {
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return err
}

// noopRouter satisfies the routing capability on platforms without call
// audio routing.
type noopRouter struct{}

func (noopRouter) ConfigureCallAudio() error    { return nil }
func (noopRouter) ResetCallAudio() error        { return nil }
func (noopRouter) SetSpeakerEnabled(bool) error { return nil }
