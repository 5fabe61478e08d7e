package catalog

import (
	"context"
	"errors"

	"github.com/coah80/pastvoices/internal/models"
)

var ErrNotFound = errors.New("not found")

// Store holds personas and their message threads.
type Store interface {
	GetPersona(ctx context.Context, id int64) (*models.Persona, error)
	ListPersonas(ctx context.Context) ([]models.Persona, error)
	CreatePersona(ctx context.Context, in models.InsertPersona) (*models.Persona, error)
	UpdatePersona(ctx context.Context, id int64, patch models.PersonaPatch) (*models.Persona, error)
	UpdateMedia(ctx context.Context, id int64, u models.MediaUpdate) (*models.Persona, error)
	DeletePersona(ctx context.Context, id int64) error
	CountPersonas(ctx context.Context) (int, error)

	ListMessages(ctx context.Context, subID int64) ([]models.Message, error)
	CreateMessage(ctx context.Context, in models.InsertMessage) (*models.Message, error)

	// VideoURLs is the durable persona id -> video url view. Cleanup treats
	// it as the ground truth for which files are in use.
	VideoURLs(ctx context.Context) (map[int64]string, error)

	Close() error
}
