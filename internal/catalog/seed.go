package catalog

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/coah80/pastvoices/internal/models"
)

//go:embed personas.toml
var seedTOML string

type seedFile struct {
	Palette  []string     `toml:"palette"`
	Personas []seedPerson `toml:"persona"`
}

type seedPerson struct {
	Name      string `toml:"name"`
	Title     string `toml:"title"`
	Bio       string `toml:"bio"`
	Prompt    string `toml:"prompt"`
	BgColor   string `toml:"bg_color,omitempty"`
	VideoURL  string `toml:"video_url,omitempty"`
	VoiceFile string `toml:"voice_file,omitempty"`
}

// SeedPersonas decodes the embedded persona catalog. Personas without a
// bg_color take the palette color at their position.
func SeedPersonas() ([]models.InsertPersona, error) {
	var f seedFile
	if _, err := toml.Decode(seedTOML, &f); err != nil {
		return nil, fmt.Errorf("decoding seed personas: %w", err)
	}

	out := make([]models.InsertPersona, 0, len(f.Personas))
	for i, sp := range f.Personas {
		in := models.InsertPersona{
			Name:    sp.Name,
			Title:   sp.Title,
			Bio:     sp.Bio,
			Prompt:  sp.Prompt,
			BgColor: sp.BgColor,
		}
		if in.BgColor == "" && len(f.Palette) > 0 {
			in.BgColor = f.Palette[i%len(f.Palette)]
		}
		if sp.VideoURL != "" {
			in.VideoURL = models.StringPtr(sp.VideoURL)
		}
		if sp.VoiceFile != "" {
			in.VoiceFile = models.StringPtr(sp.VoiceFile)
		}
		out = append(out, in)
	}
	return out, nil
}

// Seed fills an empty store with the embedded personas. A store that already
// holds personas is left alone.
func Seed(ctx context.Context, s Store) (int, error) {
	n, err := s.CountPersonas(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}

	seeds, err := SeedPersonas()
	if err != nil {
		return 0, err
	}
	for _, in := range seeds {
		if _, err := s.CreatePersona(ctx, in); err != nil {
			return 0, fmt.Errorf("seeding %s: %w", in.Name, err)
		}
	}
	return len(seeds), nil
}
