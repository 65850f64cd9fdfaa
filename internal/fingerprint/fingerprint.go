// Package fingerprint computes stable content hashes for cards, used to spot
// duplicate cards that slipped into a deck under different terms.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/gitdeck/internal/domain"
)

// Normalize concatenates the card's content after cleaning each part.
// It trims whitespace, lowercases, and normalizes line endings for each field
// before joining them.
func Normalize(card domain.Card) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	front := normalizePart(card.Front)
	back := normalizePart(card.Back)

	// We join with a newline to ensure separation between fields,
	// preventing accidental joining of words. e.g. "front" and "back"
	// becoming "frontback".
	return strings.Join([]string{front, back}, "\n")
}

// Hash takes a card, normalizes it, and returns its SHA-256 hash as a hex string.
func Hash(card domain.Card) string {
	normalized := Normalize(card)
	hashBytes := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hashBytes)
}

// Duplicates groups cards whose normalized content collides. The result maps
// each colliding hash to the terms that share it, in input order; hashes with
// a single card are omitted.
func Duplicates(cards []domain.Card) map[string][]string {
	byHash := make(map[string][]string)
	for i := range cards {
		h := Hash(cards[i])
		byHash[h] = append(byHash[h], cards[i].Term)
	}
	for h, terms := range byHash {
		if len(terms) < 2 {
			delete(byHash, h)
		}
	}
	return byHash
}
