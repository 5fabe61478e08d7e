package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coah80/pastvoices/internal/models"
)

// MemoryStore keeps the catalog in process memory and mirrors video urls to
// a VideoURLRecord so they can be replayed onto reseeded personas.
type MemoryStore struct {
	mu            sync.RWMutex
	personas      map[int64]*models.Persona
	messages      map[int64]*models.Message
	nextPersonaID int64
	nextMessageID int64
	record        *VideoURLRecord
	logger        zerolog.Logger
	now           func() time.Time
}

func NewMemoryStore(record *VideoURLRecord, logger zerolog.Logger) *MemoryStore {
	return &MemoryStore{
		personas:      make(map[int64]*models.Persona),
		messages:      make(map[int64]*models.Message),
		nextPersonaID: 1,
		nextMessageID: 1,
		record:        record,
		logger:        logger,
		now:           time.Now,
	}
}

func (s *MemoryStore) GetPersona(_ context.Context, id int64) (*models.Persona, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.personas[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListPersonas(_ context.Context) ([]models.Persona, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Persona, 0, len(s.personas))
	for _, p := range s.personas {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CountPersonas(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.personas), nil
}

func (s *MemoryStore) CreatePersona(_ context.Context, in models.InsertPersona) (*models.Persona, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &models.Persona{
		ID:        s.nextPersonaID,
		Name:      in.Name,
		Title:     in.Title,
		Bio:       in.Bio,
		Prompt:    in.Prompt,
		BgColor:   in.BgColor,
		VideoURL:  in.VideoURL,
		AvatarURL: in.AvatarURL,
		VoiceFile: in.VoiceFile,
		CreatedAt: s.now(),
	}
	s.nextPersonaID++
	s.personas[p.ID] = p

	if p.VideoURL != nil {
		if err := s.record.Set(p.ID, *p.VideoURL); err != nil {
			return nil, err
		}
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) UpdatePersona(_ context.Context, id int64, patch models.PersonaPatch) (*models.Persona, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.personas[id]
	if !ok {
		return nil, ErrNotFound
	}
	updated := *p
	patch.Apply(&updated)
	if patch.TouchesVideo() {
		if err := s.record.Set(id, models.Deref(updated.VideoURL)); err != nil {
			return nil, err
		}
	}
	s.personas[id] = &updated
	cp := updated
	return &cp, nil
}

func (s *MemoryStore) UpdateMedia(_ context.Context, id int64, u models.MediaUpdate) (*models.Persona, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.personas[id]
	if !ok {
		return nil, ErrNotFound
	}
	updated := *p
	u.Apply(&updated)
	if u.TouchesVideo() {
		if err := s.record.Set(id, models.Deref(updated.VideoURL)); err != nil {
			return nil, err
		}
	}
	s.personas[id] = &updated
	cp := updated
	return &cp, nil
}

// DeletePersona drops the record; referenced files stay on disk for cleanup.
func (s *MemoryStore) DeletePersona(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.personas[id]; !ok {
		return ErrNotFound
	}
	delete(s.personas, id)
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, subID int64) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Message{}
	for _, m := range s.messages {
		if m.SubID == subID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, in models.InsertMessage) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.personas[in.SubID]; !ok {
		return nil, ErrNotFound
	}
	m := &models.Message{
		ID:          s.nextMessageID,
		SubID:       in.SubID,
		UserMessage: in.UserMessage,
		AIResponse:  in.AIResponse,
		AudioURL:    in.AudioURL,
		CreatedAt:   s.now(),
	}
	s.nextMessageID++
	s.messages[m.ID] = m
	cp := *m
	return &cp, nil
}

// VideoURLs reads the record file rather than the in-memory map so cleanup
// never runs ahead of what has been persisted.
func (s *MemoryStore) VideoURLs(_ context.Context) (map[int64]string, error) {
	return s.record.Load()
}

// Replay restores persisted video urls onto freshly seeded personas.
// probe reports the size of the file behind a url and whether it is still on
// disk; urls whose file is gone are skipped but kept in the record.
func (s *MemoryStore) Replay(probe func(url string) (int64, bool), largeAt int64) (int, error) {
	urls, err := s.record.Load()
	if err != nil {
		return 0, fmt.Errorf("loading video url record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for id, url := range urls {
		p, ok := s.personas[id]
		if !ok {
			continue
		}
		size, found := probe(url)
		if !found {
			s.logger.Warn().Int64("persona", id).Str("url", url).Msg("Persisted video missing on disk, not restoring")
			continue
		}
		u := url
		p.VideoURL = &u
		p.VideoBytes = size
		p.IsLargeAsset = size >= largeAt
		restored++
	}
	s.logger.Info().Int("restored", restored).Int("recorded", len(urls)).Msg("Replayed video url record")
	return restored, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
