// Package db embeds the SQL migrations.
package db

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migration is one forward migration file.
type Migration struct {
	Name string
	SQL  string
}

// Up returns all *.up.sql migrations in lexical order.
func Up() ([]Migration, error) {
	names, err := fs.Glob(migrations, "migrations/*_*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		payload, err := migrations.ReadFile(name)
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{
			Name: strings.TrimSuffix(strings.TrimPrefix(name, "migrations/"), ".up.sql"),
			SQL:  string(payload),
		})
	}
	return out, nil
}
