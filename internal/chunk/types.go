package chunk

// Chunk is one retrieval unit produced by a chunker.
type Chunk struct {
	// Text is the normalized body of the chunk.
	Text string

	// SectionLabel names the structural unit the chunk came from,
	// for example "Syllabus", "Majority Opinion - Part II" or
	// "Sec. 2 - Policy(a)".
	SectionLabel string

	// TokenCount is the chunk size as measured by the TokenCounter
	// that produced it.
	TokenCount int
}
