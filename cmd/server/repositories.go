package main

import (
	"github.com/archoncouncil/api/internal/infra/postgres"
	"github.com/archoncouncil/api/pkg/domain/council"
)

// Repositories holds the persistence backends. Fields stay nil when the
// database is not configured.
type Repositories struct {
	Council council.Repository
}

// NewRepositories initializes repositories on db, which may be nil.
func NewRepositories(db *postgres.DB) *Repositories {
	repos := &Repositories{}
	if db != nil {
		repos.Council = postgres.NewCouncilRepository(db)
	}
	return repos
}
