// Package kinds defines the entity kinds of the film catalog: movies, genres
// and persons. Each has a default query, embedded in the binary, which can be
// overridden from a directory of .sql files.
package kinds

import (
	"embed"
	"os"
	"path/filepath"
	"strings"

	"github.com/cinemadb/essync"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Kind names.
const (
	Movies  = "movies"
	Genres  = "genres"
	Persons = "persons"
)

//go:embed sql/*.sql
var queries embed.FS

// Options control how the default kinds are built.
type Options struct {
	// QueryDir, if set, is searched for <kind>_query.sql before the
	// embedded queries.
	QueryDir string
	// IndexPrefix is prepended to each kind's name to form its index.
	IndexPrefix string
}

var transforms = map[string]essync.RowTransformerFunc{
	Movies:  TransformMovie,
	Genres:  TransformGenre,
	Persons: TransformPerson,
}

// Names returns the names of the default kinds in the order they are
// synchronized.
func Names() []string {
	return []string{Movies, Genres, Persons}
}

// Registry returns the named kinds, all of them if names is empty. Unknown
// names and missing queries are configuration errors.
func Registry(names []string, opts Options) (*essync.Kinds, error) {
	if len(names) == 0 {
		names = Names()
	}
	ks := make([]essync.EntityKind, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		tr, ok := transforms[name]
		if !ok {
			return nil, essync.NewConfigError("unknown kind %q, want one of %s", name, strings.Join(Names(), ", "))
		}
		q, err := Query(name, opts.QueryDir)
		if err != nil {
			return nil, err
		}
		ks = append(ks, essync.EntityKind{
			Name:      name,
			Index:     opts.IndexPrefix + name,
			Query:     q,
			Transform: tr,
		})
	}
	return essync.NewKinds(ks...)
}

// Query returns the query for kind, read from dir if it holds
// <kind>_query.sql and from the embedded defaults otherwise.
func Query(kind, dir string) (string, error) {
	file := kind + "_query.sql"
	if dir != "" {
		b, err := os.ReadFile(filepath.Join(dir, file))
		if err == nil {
			return string(b), nil
		}
		if !os.IsNotExist(err) {
			return "", errors.Wrapf(err, "reading query for %s", kind)
		}
	}
	b, err := queries.ReadFile("sql/" + file)
	if err != nil {
		return "", essync.NewConfigError("no query for kind %s", kind)
	}
	return string(b), nil
}

// normalizeID returns id in canonical UUID form.
func normalizeID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", errors.Wrapf(err, "id %q", id)
	}
	return u.String(), nil
}
