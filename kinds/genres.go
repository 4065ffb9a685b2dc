package kinds

import (
	"time"

	"github.com/cinemadb/essync"
)

type genreRow struct {
	ID          string    `mapstructure:"id" validate:"required"`
	Name        string    `mapstructure:"name" validate:"required"`
	Description *string   `mapstructure:"description"`
	UpdatedAt   time.Time `mapstructure:"updated_at" validate:"required"`
}

// Genre is the document stored in the genres index.
type Genre struct {
	UUID        string  `json:"uuid" validate:"required,uuid"`
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description,omitempty"`
}

// TransformGenre maps a genres row to a Genre document.
func TransformGenre(row essync.RawRow) (essync.Document, error) {
	var src genreRow
	if err := essync.DecodeRow(row, &src); err != nil {
		return essync.Document{}, err
	}
	id, err := normalizeID(src.ID)
	if err != nil {
		return essync.Document{}, err
	}
	doc := Genre{UUID: id, Name: src.Name, Description: src.Description}
	if err := essync.Validate(&doc); err != nil {
		return essync.Document{}, err
	}
	return essync.Document{ID: id, Body: doc}, nil
}
