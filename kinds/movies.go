package kinds

import (
	"sort"
	"time"

	"github.com/cinemadb/essync"
	"github.com/pkg/errors"
)

// Person roles in a film.
const (
	RoleActor    = "actor"
	RoleWriter   = "writer"
	RoleDirector = "director"
)

type movieRow struct {
	ID          string      `mapstructure:"id" validate:"required"`
	Title       string      `mapstructure:"title" validate:"required"`
	Description *string     `mapstructure:"description"`
	Rating      *float64    `mapstructure:"rating" validate:"omitempty,gte=0,lte=10"`
	UpdatedAt   time.Time   `mapstructure:"updated_at" validate:"required"`
	Genres      []genreRef  `mapstructure:"genres" validate:"dive"`
	Persons     []personRef `mapstructure:"persons" validate:"dive"`
}

type genreRef struct {
	ID   string `json:"id" mapstructure:"id" validate:"required"`
	Name string `json:"name" mapstructure:"name" validate:"required"`
}

type personRef struct {
	ID       string `json:"id" mapstructure:"id" validate:"required"`
	FullName string `json:"full_name" mapstructure:"full_name" validate:"required"`
	Role     string `json:"role" mapstructure:"role"`
}

// Movie is the document stored in the movies index.
type Movie struct {
	UUID        string        `json:"uuid" validate:"required,uuid"`
	Title       string        `json:"title" validate:"required"`
	IMDBRating  *float64      `json:"imdb_rating"`
	Description *string       `json:"description"`
	Genres      []MovieGenre  `json:"genres" validate:"required,dive"`
	Actors      []MoviePerson `json:"actors" validate:"required,dive"`
	Writers     []MoviePerson `json:"writers" validate:"required,dive"`
	Directors   []MoviePerson `json:"directors" validate:"required,dive"`
}

// MovieGenre is a genre embedded in a Movie.
type MovieGenre struct {
	UUID string `json:"uuid" validate:"required,uuid"`
	Name string `json:"name" validate:"required"`
}

// MoviePerson is a person embedded in a Movie.
type MoviePerson struct {
	UUID     string `json:"uuid" validate:"required,uuid"`
	FullName string `json:"full_name" validate:"required"`
}

// TransformMovie maps a movies row to a Movie document. The row's persons are
// grouped by role; persons with any other role are left out.
func TransformMovie(row essync.RawRow) (essync.Document, error) {
	var src movieRow
	if err := essync.DecodeRow(row, &src); err != nil {
		return essync.Document{}, err
	}
	id, err := normalizeID(src.ID)
	if err != nil {
		return essync.Document{}, err
	}
	doc := Movie{
		UUID:        id,
		Title:       src.Title,
		IMDBRating:  src.Rating,
		Description: src.Description,
		Genres:      make([]MovieGenre, 0, len(src.Genres)),
		Actors:      []MoviePerson{},
		Writers:     []MoviePerson{},
		Directors:   []MoviePerson{},
	}

	seenGenre := make(map[string]bool, len(src.Genres))
	for _, g := range src.Genres {
		gid, err := normalizeID(g.ID)
		if err != nil {
			return essync.Document{}, errors.Wrap(err, "genre")
		}
		if seenGenre[gid] {
			continue
		}
		seenGenre[gid] = true
		doc.Genres = append(doc.Genres, MovieGenre{UUID: gid, Name: g.Name})
	}
	sort.Slice(doc.Genres, func(i, j int) bool { return doc.Genres[i].Name < doc.Genres[j].Name })

	seenPerson := make(map[string]bool, len(src.Persons))
	for _, p := range src.Persons {
		pid, err := normalizeID(p.ID)
		if err != nil {
			return essync.Document{}, errors.Wrap(err, "person")
		}
		key := p.Role + "/" + pid
		if seenPerson[key] {
			continue
		}
		seenPerson[key] = true
		mp := MoviePerson{UUID: pid, FullName: p.FullName}
		switch p.Role {
		case RoleActor:
			doc.Actors = append(doc.Actors, mp)
		case RoleWriter:
			doc.Writers = append(doc.Writers, mp)
		case RoleDirector:
			doc.Directors = append(doc.Directors, mp)
		}
	}
	for _, ps := range [][]MoviePerson{doc.Actors, doc.Writers, doc.Directors} {
		sortPersons(ps)
	}

	if err := essync.Validate(&doc); err != nil {
		return essync.Document{}, err
	}
	return essync.Document{ID: id, Body: doc}, nil
}

func sortPersons(ps []MoviePerson) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].FullName != ps[j].FullName {
			return ps[i].FullName < ps[j].FullName
		}
		return ps[i].UUID < ps[j].UUID
	})
}
