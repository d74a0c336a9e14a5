package audio

// SplitText cuts text into chunks of at most maxLength characters
// (runes), preferring to cut at the last newline inside each window.
// The newline a chunk was cut at is dropped; a window without a usable
// newline is cut hard at maxLength and nothing is dropped. Joining the
// chunks with "\n" restores text when every cut fell on a newline.
// Empty text yields no chunks; maxLength <= 0 disables splitting.
func SplitText(text string, maxLength int) []string {
	if text == "" {
		return nil
	}
	r := []rune(text)
	if maxLength <= 0 || len(r) <= maxLength {
		return []string{text}
	}

	var chunks []string
	for start := 0; start < len(r); {
		end := start + maxLength
		if end >= len(r) {
			chunks = append(chunks, string(r[start:]))
			break
		}

		cut := lastNewline(r, start, end)
		if cut < 0 {
			chunks = append(chunks, string(r[start:end]))
			start = end
			continue
		}
		chunks = append(chunks, string(r[start:cut]))
		start = cut + 1
	}
	return chunks
}

// lastNewline returns the index of the last '\n' in r[start+1 : end+1],
// or -1. A newline at start would produce an empty chunk.
func lastNewline(r []rune, start, end int) int {
	for i := end; i > start; i-- {
		if r[i] == '\n' {
			return i
		}
	}
	return -1
}
