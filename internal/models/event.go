package models

import (
	"time"

	"github.com/google/uuid"
)

// Font style tags accepted on an event.
const (
	FontStyleBold       = "bold"
	FontStyleRegular    = "regular"
	FontStyleItalic     = "italic"
	FontStyleBoldItalic = "bold-italic"
)

// Event is a certificate campaign: one template image and one text layout.
type Event struct {
	ID            uuid.UUID `json:"id"`
	Slug          *string   `json:"slug,omitempty"`
	Name          string    `json:"name"`
	TemplatePath  string    `json:"template_path"`
	TemplateURL   string    `json:"template_url,omitempty"`
	TextPositionX int       `json:"text_position_x"`
	TextPositionY int       `json:"text_position_y"`
	FontSize      int       `json:"font_size"`
	FontColor     string    `json:"font_color"`
	FontStyle     *string   `json:"font_style,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Style returns the font style tag, defaulting to bold.
func (e *Event) Style() string {
	if e.FontStyle == nil || *e.FontStyle == "" {
		return FontStyleBold
	}
	return *e.FontStyle
}
