package services

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/coah80/pastvoices/internal/cache"
	"github.com/coah80/pastvoices/internal/catalog"
	"github.com/coah80/pastvoices/internal/config"
	"github.com/coah80/pastvoices/internal/media"
	"github.com/coah80/pastvoices/internal/metrics"
	"github.com/coah80/pastvoices/internal/models"
)

// PersonaService fronts the catalog for the HTTP layer, caching the full
// listing.
type PersonaService struct {
	store   catalog.Store
	lib     *media.Library
	cache   cache.Cache
	metrics metrics.Metrics
	largeAt int64
	logger  zerolog.Logger
}

func NewPersonaService(store catalog.Store, lib *media.Library, c cache.Cache, m metrics.Metrics, cfg *config.Config, logger zerolog.Logger) *PersonaService {
	return &PersonaService{
		store:   store,
		lib:     lib,
		cache:   c,
		metrics: m,
		largeAt: cfg.Media.LargeAssetBytes,
		logger:  logger,
	}
}

func (s *PersonaService) List(ctx context.Context) ([]models.Persona, error) {
	if raw, ok := s.cache.Get(cache.KeyPersonas); ok {
		var out []models.Persona
		if err := json.Unmarshal(raw, &out); err == nil {
			s.metrics.IncCacheHits()
			return out, nil
		}
	}
	s.metrics.IncCacheMisses()

	out, err := s.store.ListPersonas(ctx)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(out); err == nil {
		s.cache.Set(cache.KeyPersonas, raw)
	}
	return out, nil
}

func (s *PersonaService) Get(ctx context.Context, id int64) (*models.Persona, error) {
	return s.store.GetPersona(ctx, id)
}

func (s *PersonaService) Create(ctx context.Context, in models.InsertPersona) (*models.Persona, error) {
	if err := validateStruct("sub", &in); err != nil {
		return nil, err
	}
	p, err := s.store.CreatePersona(ctx, in)
	if err != nil {
		return nil, err
	}
	s.invalidate()
	if p.VideoURL != nil {
		return s.measure(ctx, p)
	}
	return p, nil
}

func (s *PersonaService) Update(ctx context.Context, id int64, patch models.PersonaPatch) (*models.Persona, error) {
	if err := validatePatch(&patch); err != nil {
		return nil, err
	}
	p, err := s.store.UpdatePersona(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.invalidate()
	if patch.TouchesVideo() {
		return s.measure(ctx, p)
	}
	return p, nil
}

func (s *PersonaService) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeletePersona(ctx, id); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// measure refreshes the size fields after the video url was set by hand.
func (s *PersonaService) measure(ctx context.Context, p *models.Persona) (*models.Persona, error) {
	size, _ := s.lib.Probe(models.Deref(p.VideoURL))
	large := size >= s.largeAt
	return s.store.UpdateMedia(ctx, p.ID, models.MediaUpdate{VideoBytes: &size, LargeAsset: &large})
}

func (s *PersonaService) invalidate() {
	s.cache.Delete(cache.KeyPersonas)
}
