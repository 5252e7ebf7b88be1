package domain

import (
	"strings"
	"unicode/utf8"
)

// splitLongChunks splits paragraphs longer than MaxChunkLength at sentence
// boundaries, packing sentences greedily up to the limit. A single sentence
// longer than the limit becomes its own oversized chunk rather than being cut
// mid-sentence.
func splitLongChunks(paragraphs []string) []string {
	var result []string

	for _, para := range paragraphs {
		if utf8.RuneCountInString(para) <= MaxChunkLength {
			result = append(result, para)
			continue
		}

		var chunk string
		for _, sentence := range splitIntoSentences(para) {
			chunkLen := utf8.RuneCountInString(chunk)
			sentenceLen := utf8.RuneCountInString(sentence)
			spaceLen := 0
			if chunkLen > 0 {
				spaceLen = 1
			}

			if chunkLen > 0 && chunkLen+spaceLen+sentenceLen > MaxChunkLength {
				result = append(result, chunk)
				chunk = sentence
			} else {
				if chunk != "" {
					chunk += " "
				}
				chunk += sentence
			}
		}

		if chunk != "" {
			result = append(result, chunk)
		}
	}

	return result
}

// splitIntoSentences splits at . ! ? and the Devanagari danda, when followed
// by whitespace or end of text. Scheme texts mix English punctuation with
// Hindi sentences terminated by the danda.
func splitIntoSentences(text string) []string {
	var sentences []string
	var current string

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		current += string(runes[i])

		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' || runes[i] == '।' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' {
				sentences = append(sentences, strings.TrimSpace(current))
				current = ""
			}
		}
	}

	if trimmed := strings.TrimSpace(current); trimmed != "" {
		sentences = append(sentences, trimmed)
	}

	return sentences
}
