package session

import (
	"errors"

	"superzork/pkg/chat"
)

// ErrOversizedInput is returned when a single player turn cannot fit the
// token budget even with the entire history evicted. The turn is rejected
// rather than silently truncated; the player is asked to shorten it.
var ErrOversizedInput = errors.New("input is too large for the token budget")

// fitWindow evicts turns from the oldest end of the transcript, one at a
// time, until the preamble plus remaining history plus the new turn fits the
// scenario's token budget. Eviction is destructive: removed turns are gone.
//
// The oversize check runs before any eviction so that a turn which could
// never fit doesn't wipe the history on its way to being rejected. The
// preamble and the new turn itself are never evicted.
func (s *Session) fitWindow(newTurn chat.Turn) (evicted int, err error) {
	budget := s.scenario.NumTokens
	fixed := s.preambleTokens + newTurn.Tokens
	if fixed > budget {
		return 0, ErrOversizedInput
	}

	total := fixed + s.HistoryTokens()
	for total > budget && len(s.transcript) > 0 {
		total -= s.transcript[0].Tokens
		s.transcript = s.transcript[1:]
		evicted++
	}
	return evicted, nil
}
