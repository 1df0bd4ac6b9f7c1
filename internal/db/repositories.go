package db

// Repositories provides access to all database repositories
type Repositories struct {
	Ranks *RankRepository
}

// NewRepositories creates a new repository collection
func NewRepositories(db *DB) *Repositories {
	return &Repositories{
		Ranks: NewRankRepository(db),
	}
}
