package audio

import "sync"

// Chunker buffers raw PCM bytes into fixed-size chunks. The playback sink
// pulls audio at a fixed cadence, so bot frames of arbitrary size are cut
// into uniform chunks before feeding.
type Chunker struct {
	chunkBytes int
	buffer     []byte
	mu         sync.Mutex
}

// NewChunker creates a chunker producing chunks of chunkDurationMs of mono
// 16-bit PCM at sampleRate.
// sampleRate=24000, chunkDurationMs=40 → 1920 bytes per chunk.
func NewChunker(sampleRate, chunkDurationMs int) *Chunker {
	chunkBytes := (sampleRate * chunkDurationMs / 1000) * BytesPerSample

	return &Chunker{
		chunkBytes: chunkBytes,
		buffer:     make([]byte, 0, chunkBytes),
	}
}

// ChunkBytes returns the size of one complete chunk in bytes.
func (c *Chunker) ChunkBytes() int {
	return c.chunkBytes
}

// Add appends data to the buffer and returns all complete chunks.
func (c *Chunker) Add(data []byte) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buffer = append(c.buffer, data...)

	var chunks [][]byte
	for len(c.buffer) >= c.chunkBytes {
		chunk := make([]byte, c.chunkBytes)
		copy(chunk, c.buffer[:c.chunkBytes])
		chunks = append(chunks, chunk)
		c.buffer = c.buffer[c.chunkBytes:]
	}

	return chunks
}

// Flush returns any remaining bytes as a partial chunk.
func (c *Chunker) Flush() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buffer) == 0 {
		return nil
	}

	chunk := make([]byte, len(c.buffer))
	copy(chunk, c.buffer)
	c.buffer = c.buffer[:0]

	return chunk
}

// Reset clears the buffer.
func (c *Chunker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer = c.buffer[:0]
}
