package session

// EstimateTokens approximates the token count of a text as one token per
// four characters. Deliberately crude; it only drives compaction and
// quota bookkeeping, not billing.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(text) / 4
}
