// Package chunk splits government documents into retrieval-sized pieces.
//
// Both document families share a token-budgeted sliding window
// (ChunkTextWithTokens) that operates inside structural units: Supreme
// Court opinions are first split along opinion boundaries (Syllabus,
// majority, concurrences, dissents) and Executive Orders along
// Section/subsection boundaries. Because every unit is windowed
// independently, overlap between adjacent chunks never crosses a
// structural boundary.
package chunk
