package channel

// splitMessage cuts msg into chunks of at most maxLen runes, preferring to
// break after a newline in the second half of a chunk. Telegram's limit is
// counted in characters, not bytes.
func splitMessage(msg string, maxLen int) []string {
	runes := []rune(msg)
	if len(runes) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= maxLen {
			chunks = append(chunks, string(runes))
			break
		}

		cut := maxLen
		for i := maxLen - 1; i > maxLen/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}

		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	return chunks
}

// truncate shortens msg to at most maxLen runes.
func truncate(msg string, maxLen int) string {
	runes := []rune(msg)
	if len(runes) <= maxLen {
		return msg
	}
	return string(runes[:maxLen-1]) + "…"
}
