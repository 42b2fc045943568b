package memory

import (
	"context"
	"sync"
	"time"

	"github.com/truevoice/voice-verification/internal/core/domain"
)

type storedChallenge struct {
	ch      domain.Challenge
	evictAt time.Time
}

// ChallengeStore is an in-process ChallengeStore. A single mutex makes
// Consume a compare-and-set.
type ChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*storedChallenge
	// index values are challenge ids; evictLocked drops entries whose
	// challenge is gone.
	byPhrase       map[string]string
	byCallerPhrase map[string]string
	byCaller       map[string]string
}

func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{
		challenges:     make(map[string]*storedChallenge),
		byPhrase:       make(map[string]string),
		byCallerPhrase: make(map[string]string),
		byCaller:       make(map[string]string),
	}
}

func callerPhraseKey(caller, phrase string) string {
	return caller + "\x00" + domain.NormalizePhrase(phrase)
}

func (s *ChallengeStore) Save(_ context.Context, ch *domain.Challenge, retain time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(ch.IssuedAt)
	s.challenges[ch.ID] = &storedChallenge{ch: *ch, evictAt: ch.IssuedAt.Add(retain)}
	s.byPhrase[domain.NormalizePhrase(ch.Phrase)] = ch.ID
	if ch.Caller != "" {
		s.byCaller[ch.Caller] = ch.ID
		s.byCallerPhrase[callerPhraseKey(ch.Caller, ch.Phrase)] = ch.ID
	}
	return nil
}

func (s *ChallengeStore) Consume(_ context.Context, id string, now time.Time) (*domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.challenges[id]
	if !ok || !now.Before(sc.evictAt) {
		return nil, domain.ErrChallengeNotFound
	}
	if sc.ch.ExpiredAt(now) {
		return nil, domain.ErrChallengeExpired
	}
	if sc.ch.Consumed {
		return nil, domain.ErrChallengeConsumed
	}
	sc.ch.Consumed = true
	out := sc.ch
	return &out, nil
}

func (s *ChallengeStore) LatestForPhrase(_ context.Context, caller, phrase string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if caller == "" {
		return s.byPhrase[domain.NormalizePhrase(phrase)], nil
	}
	return s.byCallerPhrase[callerPhraseKey(caller, phrase)], nil
}

func (s *ChallengeStore) LastPhrase(_ context.Context, caller string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.challenges[s.byCaller[caller]]; ok {
		return sc.ch.Phrase, nil
	}
	return "", nil
}

// evictLocked drops records past their retention along with the index
// entries pointing at them.
func (s *ChallengeStore) evictLocked(now time.Time) {
	for id, sc := range s.challenges {
		if now.Before(sc.evictAt) {
			continue
		}
		delete(s.challenges, id)
		if key := domain.NormalizePhrase(sc.ch.Phrase); s.byPhrase[key] == id {
			delete(s.byPhrase, key)
		}
		if sc.ch.Caller == "" {
			continue
		}
		if key := callerPhraseKey(sc.ch.Caller, sc.ch.Phrase); s.byCallerPhrase[key] == id {
			delete(s.byCallerPhrase, key)
		}
		if s.byCaller[sc.ch.Caller] == id {
			delete(s.byCaller, sc.ch.Caller)
		}
	}
}
