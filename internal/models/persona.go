package models

import "time"

// Persona is a simulated historical figure. Only the media fields change
// after creation.
type Persona struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Title        string    `json:"title"`
	Bio          string    `json:"bio"`
	Prompt       string    `json:"prompt"`
	BgColor      string    `json:"bgColor"`
	VideoURL     *string   `json:"videoUrl"`
	AvatarURL    *string   `json:"avatarUrl"`
	VoiceFile    *string   `json:"voiceFile"`
	VideoBytes   int64     `json:"videoBytes"`
	IsLargeAsset bool      `json:"isLargeAsset"`
	CreatedAt    time.Time `json:"createdAt"`
}

type InsertPersona struct {
	Name      string  `json:"name" validate:"required|maxLen:200"`
	Title     string  `json:"title" validate:"required|maxLen:200"`
	Bio       string  `json:"bio" validate:"required"`
	Prompt    string  `json:"prompt" validate:"required"`
	BgColor   string  `json:"bgColor"`
	VideoURL  *string `json:"videoUrl"`
	AvatarURL *string `json:"avatarUrl"`
	VoiceFile *string `json:"voiceFile"`
}

// PersonaPatch carries a partial update; nil fields are left untouched.
type PersonaPatch struct {
	Name      *string `json:"name"`
	Title     *string `json:"title"`
	Bio       *string `json:"bio"`
	Prompt    *string `json:"prompt"`
	BgColor   *string `json:"bgColor"`
	VideoURL  *string `json:"videoUrl"`
	AvatarURL *string `json:"avatarUrl"`
	VoiceFile *string `json:"voiceFile"`
}

// MediaUpdate is the narrow mutation the upload and optimizer paths use.
type MediaUpdate struct {
	VideoURL   *string
	AvatarURL  *string
	VoiceFile  *string
	VideoBytes *int64
	LargeAsset *bool
}

func (p *PersonaPatch) Apply(dst *Persona) {
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.Title != nil {
		dst.Title = *p.Title
	}
	if p.Bio != nil {
		dst.Bio = *p.Bio
	}
	if p.Prompt != nil {
		dst.Prompt = *p.Prompt
	}
	if p.BgColor != nil {
		dst.BgColor = *p.BgColor
	}
	if p.VideoURL != nil {
		dst.VideoURL = nullable(*p.VideoURL)
	}
	if p.AvatarURL != nil {
		dst.AvatarURL = nullable(*p.AvatarURL)
	}
	if p.VoiceFile != nil {
		dst.VoiceFile = nullable(*p.VoiceFile)
	}
}

func (m *MediaUpdate) Apply(dst *Persona) {
	if m.VideoURL != nil {
		dst.VideoURL = nullable(*m.VideoURL)
	}
	if m.AvatarURL != nil {
		dst.AvatarURL = nullable(*m.AvatarURL)
	}
	if m.VoiceFile != nil {
		dst.VoiceFile = nullable(*m.VoiceFile)
	}
	if m.VideoBytes != nil {
		dst.VideoBytes = *m.VideoBytes
	}
	if m.LargeAsset != nil {
		dst.IsLargeAsset = *m.LargeAsset
	}
}

// TouchesVideo reports whether applying the patch may change the video url.
func (p *PersonaPatch) TouchesVideo() bool {
	return p.VideoURL != nil
}

func (m *MediaUpdate) TouchesVideo() bool {
	return m.VideoURL != nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func StringPtr(s string) *string {
	return &s
}

func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
