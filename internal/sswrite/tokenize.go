package sswrite

import "strings"

// sentence is one editable span of words. The final word carries its
// terminating punctuation ('.', '!', or '?'), if any, as a trailing byte.
type sentence []string

func isTerminator(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

func endsWithTerminator(word string) bool {
	if word == "" {
		return false
	}
	return isTerminator(word[len(word)-1])
}

// tokenizeSentences splits text by whitespace into words, then groups words
// into sentences: a sentence ends at any word whose final character is a
// terminator. A trailing run of words with no terminator counts as one
// additional editable sentence. An empty (or all-whitespace) document yields
// exactly one empty sentence, so sentence #1 is always editable.
func tokenizeSentences(text string) []sentence {
	words := strings.Fields(text)
	var sentences []sentence
	var cur sentence
	for _, w := range words {
		cur = append(cur, w)
		if endsWithTerminator(w) {
			sentences = append(sentences, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		sentences = append(sentences, cur)
	}
	if len(sentences) == 0 {
		sentences = append(sentences, sentence{})
	}
	return sentences
}

// sentenceText joins a sentence's words with single spaces.
func sentenceText(s sentence) string {
	return strings.Join(s, " ")
}

// joinSentences reassembles a full document from its sentences, each
// separated from its neighbor by a single space.
func joinSentences(sentences []sentence) string {
	parts := make([]string, 0, len(sentences))
	for _, s := range sentences {
		t := sentenceText(s)
		if t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// peelTerminator removes the target sentence's terminating punctuation from
// its last word (if any), returning the stripped sentence and the
// terminator byte as a string ("" if the sentence has none, e.g. a trailing
// partial sentence under edit).
func peelTerminator(s sentence) (stripped sentence, terminator string) {
	if len(s) == 0 {
		return s, ""
	}
	last := s[len(s)-1]
	if !endsWithTerminator(last) {
		return s, ""
	}
	terminator = last[len(last)-1:]
	bare := last[:len(last)-1]
	stripped = append(sentence{}, s[:len(s)-1]...)
	if bare != "" {
		stripped = append(stripped, bare)
	}
	return stripped, terminator
}

// reattachTerminator appends terminator (if any) to the last word of s,
// restoring the sentence's punctuation after an edit.
func reattachTerminator(s sentence, terminator string) sentence {
	if terminator == "" || len(s) == 0 {
		return s
	}
	out := append(sentence{}, s...)
	out[len(out)-1] += terminator
	return out
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func charCount(text string) int {
	return len([]rune(text))
}
