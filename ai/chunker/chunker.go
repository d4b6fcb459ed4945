// Package chunker splits raw text into overlapping bounded-size chunks for
// embedding and storage. Splitting is paragraph-aware and greedy: it trades
// exact size precision for cheap boundaries that never cut a word in half.
package chunker

import "strings"

// Chunk splits text into chunks of at most chunkSize bytes, then prepends the
// last overlap words of each chunk to its successor. Paragraphs (blank-line
// separated) are accumulated greedily; a single paragraph longer than
// chunkSize is split on word boundaries instead. A chunk may exceed chunkSize
// only when it consists of a single word longer than the limit.
//
// Empty or blank input yields nil. overlap=0 or a single chunk skips the
// overlap pass.
func Chunk(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 || strings.TrimSpace(text) == "" {
		return nil
	}

	paragraphs := strings.Split(text, "\n\n")

	var chunks []string
	current := ""
	for _, para := range paragraphs {
		if len(current)+len(para) <= chunkSize {
			current += para + "\n\n"
			continue
		}

		if current != "" {
			chunks = appendChunk(chunks, current)
		}

		if len(para) > chunkSize {
			words := strings.Fields(para)
			temp := ""
			for _, word := range words {
				if len(temp)+len(word) <= chunkSize {
					temp += word + " "
					continue
				}
				if temp != "" {
					chunks = appendChunk(chunks, temp)
				}
				temp = word + " "
			}
			// The tail of an oversized paragraph becomes the new running
			// buffer so it can merge with the paragraphs that follow.
			current = temp
		} else {
			current = para + "\n\n"
		}
	}
	if current != "" {
		chunks = appendChunk(chunks, current)
	}

	if overlap > 0 && len(chunks) > 1 {
		overlapped := make([]string, 0, len(chunks))
		overlapped = append(overlapped, chunks[0])
		for i := 1; i < len(chunks); i++ {
			prevWords := strings.Fields(chunks[i-1])
			if len(prevWords) > overlap {
				prevWords = prevWords[len(prevWords)-overlap:]
			}
			overlapped = append(overlapped, strings.Join(prevWords, " ")+" "+chunks[i])
		}
		chunks = overlapped
	}

	return chunks
}

func appendChunk(chunks []string, raw string) []string {
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		chunks = append(chunks, trimmed)
	}
	return chunks
}
