package kinds

import (
	"sort"
	"time"

	"github.com/cinemadb/essync"
	"github.com/pkg/errors"
)

type personRow struct {
	ID        string    `mapstructure:"id" validate:"required"`
	FullName  string    `mapstructure:"full_name" validate:"required"`
	UpdatedAt time.Time `mapstructure:"updated_at" validate:"required"`
	Films     []filmRef `mapstructure:"films" validate:"dive"`
}

type filmRef struct {
	ID     string   `json:"film_work_id" mapstructure:"film_work_id" validate:"required"`
	Title  string   `json:"title" mapstructure:"title" validate:"required"`
	Rating *float64 `json:"rating" mapstructure:"rating"`
	Roles  []string `json:"roles" mapstructure:"roles" validate:"dive,oneof=actor writer director"`
}

// Person is the document stored in the persons index.
type Person struct {
	UUID     string       `json:"uuid" validate:"required,uuid"`
	FullName string       `json:"full_name" validate:"required"`
	Films    []PersonFilm `json:"films" validate:"required,dive"`
}

// PersonFilm is a film a Person took part in, with every role they held.
type PersonFilm struct {
	UUID       string   `json:"uuid" validate:"required,uuid"`
	Title      string   `json:"title" validate:"required"`
	IMDBRating *float64 `json:"imdb_rating"`
	Roles      []string `json:"roles" validate:"dive,oneof=actor writer director"`
}

var roleOrder = map[string]int{RoleActor: 0, RoleWriter: 1, RoleDirector: 2}

// TransformPerson maps a persons row to a Person document. Entries for the
// same film are merged. A role other than actor, writer or director fails
// the row.
func TransformPerson(row essync.RawRow) (essync.Document, error) {
	var src personRow
	if err := essync.DecodeRow(row, &src); err != nil {
		return essync.Document{}, err
	}
	id, err := normalizeID(src.ID)
	if err != nil {
		return essync.Document{}, err
	}
	doc := Person{UUID: id, FullName: src.FullName, Films: make([]PersonFilm, 0, len(src.Films))}

	byFilm := make(map[string]int, len(src.Films))
	roles := make([]map[string]bool, 0, len(src.Films))
	for _, f := range src.Films {
		fid, err := normalizeID(f.ID)
		if err != nil {
			return essync.Document{}, errors.Wrap(err, "film")
		}
		i, ok := byFilm[fid]
		if !ok {
			i = len(doc.Films)
			byFilm[fid] = i
			doc.Films = append(doc.Films, PersonFilm{UUID: fid, Title: f.Title, IMDBRating: f.Rating})
			roles = append(roles, make(map[string]bool))
		}
		for _, r := range f.Roles {
			roles[i][r] = true
		}
	}

	for i := range doc.Films {
		f := &doc.Films[i]
		f.Roles = make([]string, 0, len(roles[i]))
		for r := range roles[i] {
			f.Roles = append(f.Roles, r)
		}
		sort.Slice(f.Roles, func(a, b int) bool { return roleOrder[f.Roles[a]] < roleOrder[f.Roles[b]] })
	}

	if err := essync.Validate(&doc); err != nil {
		return essync.Document{}, err
	}
	return essync.Document{ID: id, Body: doc}, nil
}
