package domain

import "unicode/utf8"

// mergeShortChunks folds paragraphs shorter than MinChunkLength into their
// neighbors. Short runs accumulate until they reach the minimum or hit a long
// paragraph; a still-short accumulator attaches to the previous chunk, or is
// prepended to the next long paragraph when there is no previous one.
func mergeShortChunks(paragraphs []string) []string {
	if len(paragraphs) == 0 {
		return paragraphs
	}

	var merged []string
	var pending string

	for _, para := range paragraphs {
		if utf8.RuneCountInString(para) >= MinChunkLength {
			if pending != "" {
				if utf8.RuneCountInString(pending) < MinChunkLength {
					if len(merged) > 0 {
						merged[len(merged)-1] = merged[len(merged)-1] + "\n\n" + pending
					} else {
						para = pending + "\n\n" + para
					}
				} else {
					merged = append(merged, pending)
				}
				pending = ""
			}
			merged = append(merged, para)
			continue
		}

		if pending == "" {
			pending = para
		} else {
			pending = pending + "\n\n" + para
		}
	}

	if pending != "" {
		if utf8.RuneCountInString(pending) < MinChunkLength && len(merged) > 0 {
			merged[len(merged)-1] = merged[len(merged)-1] + "\n\n" + pending
		} else {
			// A lone short source stays as its only chunk.
			merged = append(merged, pending)
		}
	}

	return merged
}

// mergeConsecutiveShortChunks is a second pass for short chunks the first
// pass left adjacent to each other.
func mergeConsecutiveShortChunks(paragraphs []string) []string {
	if len(paragraphs) <= 1 {
		return paragraphs
	}

	var result []string
	for i := 0; i < len(paragraphs); i++ {
		current := paragraphs[i]
		currentLen := utf8.RuneCountInString(current)

		for i+1 < len(paragraphs) {
			nextLen := utf8.RuneCountInString(paragraphs[i+1])
			if currentLen < MinChunkLength && nextLen < MinChunkLength {
				current = current + "\n\n" + paragraphs[i+1]
				currentLen = utf8.RuneCountInString(current)
				i++
			} else {
				break
			}
		}

		if currentLen < MinChunkLength && i+1 < len(paragraphs) {
			paragraphs[i+1] = current + "\n\n" + paragraphs[i+1]
			continue
		}

		if currentLen < MinChunkLength && len(result) > 0 {
			result[len(result)-1] = result[len(result)-1] + "\n\n" + current
			continue
		}

		result = append(result, current)
	}
	return result
}
