package ingest

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// DockerAdapter streams one container's combined stdout/stderr. It is
// grounded in the teacher's LogBroker.streamContainer: Docker
// multiplexes stdout and stderr onto one connection as a sequence of
// 8-byte-header frames (1 stream-type byte, 3 reserved, 4 big-endian
// payload length), and ContainerLogs hands back that raw multiplexed
// stream for the caller to demux.
type DockerAdapter struct {
	Client      *client.Client
	ContainerID string

	// ReconnectDelay is the pause between a broken stream and the next
	// attempt. Defaults to 1s.
	ReconnectDelay time.Duration
}

const dockerMaxFrameSize = 1024 * 1024

func (a *DockerAdapter) Run(ctx context.Context, sourceID string, out chan<- SourceEvent) {
	if !emitStatus(ctx, out, sourceID, KindDocker, StateStarting, nil) {
		emitTerminal(out, sourceID, KindDocker, StateStopped, nil)
		return
	}

	delay := a.ReconnectDelay
	if delay <= 0 {
		delay = time.Second
	}

	tail := "50"
	announcedRunning := false

	for {
		if ctx.Err() != nil {
			emitTerminal(out, sourceID, KindDocker, StateStopped, nil)
			return
		}

		reader, err := a.Client.ContainerLogs(ctx, a.ContainerID, container.LogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Follow:     true,
			Tail:       tail,
		})
		if err != nil {
			if ctx.Err() != nil {
				emitTerminal(out, sourceID, KindDocker, StateStopped, nil)
				return
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				emitTerminal(out, sourceID, KindDocker, StateStopped, nil)
				return
			}
			continue
		}
		tail = "0" // only the first successful connection backfills

		if !announcedRunning {
			// Running is non-terminal; a dropped delivery doesn't change
			// that the connection is live, so keep streaming.
			emitStatus(ctx, out, sourceID, KindDocker, StateRunning, nil)
			announcedRunning = true
		}

		broken := a.streamOne(ctx, sourceID, out, reader)
		if ctx.Err() != nil {
			emitTerminal(out, sourceID, KindDocker, StateStopped, nil)
			return
		}
		if !broken {
			continue
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			emitTerminal(out, sourceID, KindDocker, StateStopped, nil)
			return
		}
	}
}

// streamOne demuxes frames from one connection until it errs or ctx
// is canceled. Returns true if the stream broke and should be
// reconnected.
func (a *DockerAdapter) streamOne(ctx context.Context, sourceID string, out chan<- SourceEvent, reader io.ReadCloser) bool {
	var closeOnce sync.Once
	closeReader := func() { reader.Close() }
	defer closeOnce.Do(closeReader)

	// Closing the reader unblocks a pending Read() once ctx is done;
	// this goroutine exits as soon as streamOne returns because done
	// is closed on return.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeOnce.Do(closeReader)
		case <-done:
		}
	}()

	buf := make([]byte, 8192)
	var incomplete []byte

	for {
		n, err := reader.Read(buf)
		if n > 0 {
			data := append(incomplete, buf[:n]...)
			incomplete = nil
			offset := 0

			for offset < len(data) {
				if offset+8 > len(data) {
					incomplete = append(incomplete, data[offset:]...)
					break
				}
				size := int(data[offset+4])<<24 | int(data[offset+5])<<16 | int(data[offset+6])<<8 | int(data[offset+7])
				if size < 0 || size > dockerMaxFrameSize {
					break
				}
				frameEnd := offset + 8 + size
				if frameEnd > len(data) {
					incomplete = append(incomplete, data[offset:]...)
					if len(incomplete)+len(buf) > dockerMaxFrameSize && len(buf) < dockerMaxFrameSize {
						grown := len(buf) * 2
						if grown > dockerMaxFrameSize {
							grown = dockerMaxFrameSize
						}
						buf = make([]byte, grown)
					}
					break
				}
				payload := data[offset+8 : frameEnd]
				line := strings.TrimRight(string(payload), "\n")
				if !emitLog(ctx, out, sourceID, KindDocker, line, time.Now()) {
					return false
				}
				offset = frameEnd
			}
		}
		if err != nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
}
