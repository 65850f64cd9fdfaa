// Package deckfile reads and writes the per-deck JSON document. Key order in
// the document is semantically meaningful: it drives every card's Order
// field, which is reassigned from scratch on each parse.
package deckfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/conorfennell/gitdeck/internal/domain"
)

// Name is the document file name inside each deck directory.
const Name = "cards.json"

// ErrMalformed wraps any parse failure of a deck document. It is fatal for
// that one deck only; other decks in the repository still pull.
var ErrMalformed = errors.New("malformed deck document")

// entry is the wire form of one card, keyed by term in the document.
type entry struct {
	Front        string                  `json:"front,omitempty"`
	Back         string                  `json:"back"`
	Tags         []string                `json:"tags,omitempty"`
	Created      string                  `json:"created"`
	Reversible   bool                    `json:"reversible,omitempty"`
	State        *domain.SchedulingState `json:"state"`
	ReverseState *domain.SchedulingState `json:"reverseState"`
	Suspended    bool                    `json:"suspended,omitempty"`
}

// Parse decodes a deck document, assigning Order from key position. Keys
// prefixed with "$" are reserved and skipped without consuming an order slot.
func Parse(deckName string, r io.Reader) ([]domain.Card, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: document is not a JSON object", ErrMalformed)
	}

	var cards []domain.Card
	order := 0
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		term, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: non-string key", ErrMalformed)
		}

		if strings.HasPrefix(term, "$") {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("%w: reserved key %q: %v", ErrMalformed, term, err)
			}
			continue
		}

		var e entry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("%w: card %q: %v", ErrMalformed, term, err)
		}
		card, err := toCard(deckName, term, order, e)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
		order++
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return cards, nil
}

func toCard(deckName, term string, order int, e entry) (domain.Card, error) {
	front := e.Front
	if front == "" {
		front = term
	}
	created := time.Time{}
	if e.Created != "" {
		t, err := time.Parse(time.RFC3339, e.Created)
		if err != nil {
			return domain.Card{}, fmt.Errorf("%w: card %q: invalid created %q", ErrMalformed, term, e.Created)
		}
		created = t
	}
	return domain.Card{
		Deck:         deckName,
		Term:         term,
		Front:        front,
		Back:         e.Back,
		Tags:         e.Tags,
		Created:      created,
		Reversible:   e.Reversible,
		Order:        order,
		Suspended:    e.Suspended,
		State:        e.State,
		ReverseState: e.ReverseState,
	}, nil
}

// Marshal serializes cards into a deck document, writing keys in Order so a
// round trip preserves the declared ordering. Cards must already be sorted
// by Order; Marshal does not reorder.
func Marshal(cards []domain.Card) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i := range cards {
		c := &cards[i]
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  ")

		key, err := json.Marshal(c.Term)
		if err != nil {
			return nil, fmt.Errorf("marshal term %q: %w", c.Term, err)
		}
		buf.Write(key)
		buf.WriteString(": ")

		e := entry{
			Back:         c.Back,
			Tags:         c.Tags,
			Reversible:   c.Reversible,
			State:        c.State,
			ReverseState: c.ReverseState,
			Suspended:    c.Suspended,
		}
		if c.Front != c.Term {
			e.Front = c.Front
		}
		if !c.Created.IsZero() {
			e.Created = c.Created.UTC().Format(time.RFC3339)
		}
		val, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal card %q: %w", c.Term, err)
		}
		buf.Write(val)
	}
	buf.WriteString("\n}\n")
	return buf.Bytes(), nil
}
