package telephony

// ============================================
// AUDIO BUFFER HELPERS
// Chunking for providers with framed payload requirements
// ============================================

// SplitAudioBuffer splits audio into chunks of at most maxSize bytes, each a
// multiple of align. The final chunk is zero-padded up to the alignment
// (silence in linear PCM), so every emitted chunk satisfies the provider's
// framing requirement.
func SplitAudioBuffer(data []byte, maxSize, align int) [][]byte {
	if align <= 0 {
		align = 1
	}
	if maxSize < align {
		maxSize = align
	}
	// Keep chunk boundaries on the alignment grid
	maxSize -= maxSize % align

	if len(data) == 0 {
		return nil
	}

	var chunks [][]byte
	for i := 0; i < len(data); i += maxSize {
		end := i + maxSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[i:end]

		if rem := len(chunk) % align; rem != 0 {
			padded := make([]byte, len(chunk)+align-rem)
			copy(padded, chunk)
			chunk = padded
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// ConcatAudioBuffers concatenates audio chunks into one buffer
func ConcatAudioBuffers(buffers [][]byte) []byte {
	total := 0
	for _, b := range buffers {
		total += len(b)
	}

	out := make([]byte, 0, total)
	for _, b := range buffers {
		out = append(out, b...)
	}
	return out
}
