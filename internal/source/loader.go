package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/resilience"
)

const (
	profilesQuery = `SELECT id, full_name, headline, bio, tags, skills, location, years_experience, open_to_work, updated_at
		FROM profiles ORDER BY id`
	repositoriesQuery = `SELECT id, name, description, topics, language, owner, stars, updated_at
		FROM repositories WHERE NOT archived ORDER BY id`
	usersQuery = `SELECT id, username, full_name, bio, location, is_active, created_at
		FROM users ORDER BY id`
	skillsQuery = `SELECT id, name, description, category, aliases, updated_at
		FROM skills ORDER BY id`
)

// Querier is satisfied by *sql.DB.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Sink receives loaded documents. *registry.Registry satisfies it.
type Sink interface {
	AddDocuments(name string, docs []document.SearchDocument) error
}

// Load fetches every document destined for one index.
type Load struct {
	Index string
	Kind  document.Type
	Fetch func(ctx context.Context) ([]document.SearchDocument, error)
}

type Loader struct {
	db     Querier
	cfg    config.SourceConfig
	logger *slog.Logger
}

func NewLoader(db Querier, cfg config.SourceConfig) *Loader {
	return &Loader{
		db:     db,
		cfg:    cfg,
		logger: slog.Default().With("component", "source-loader"),
	}
}

// Loads returns one Load per record type with a configured index name.
func (l *Loader) Loads() []Load {
	all := []Load{
		{Index: l.cfg.Profiles, Kind: document.TypeProfile, Fetch: l.Profiles},
		{Index: l.cfg.Repositories, Kind: document.TypeRepository, Fetch: l.Repositories},
		{Index: l.cfg.Users, Kind: document.TypeUser, Fetch: l.Users},
		{Index: l.cfg.Skills, Kind: document.TypeSkill, Fetch: l.Skills},
	}
	loads := all[:0]
	for _, ld := range all {
		if ld.Index != "" {
			loads = append(loads, ld)
		}
	}
	return loads
}

func (l *Loader) Profiles(ctx context.Context) ([]document.SearchDocument, error) {
	return queryAll(ctx, l.db, profilesQuery, func(rows *sql.Rows) (document.SearchDocument, error) {
		var r ProfileRow
		err := rows.Scan(&r.ID, &r.FullName, &r.Headline, &r.Bio, pq.Array(&r.Tags), pq.Array(&r.Skills),
			&r.Location, &r.YearsExperience, &r.OpenToWork, &r.UpdatedAt)
		return ProfileDocument(r), err
	})
}

func (l *Loader) Repositories(ctx context.Context) ([]document.SearchDocument, error) {
	return queryAll(ctx, l.db, repositoriesQuery, func(rows *sql.Rows) (document.SearchDocument, error) {
		var r RepositoryRow
		err := rows.Scan(&r.ID, &r.Name, &r.Description, pq.Array(&r.Topics), &r.Language, &r.Owner, &r.Stars, &r.UpdatedAt)
		return RepositoryDocument(r), err
	})
}

func (l *Loader) Users(ctx context.Context) ([]document.SearchDocument, error) {
	return queryAll(ctx, l.db, usersQuery, func(rows *sql.Rows) (document.SearchDocument, error) {
		var r UserRow
		err := rows.Scan(&r.ID, &r.Username, &r.FullName, &r.Bio, &r.Location, &r.Active, &r.CreatedAt)
		return UserDocument(r), err
	})
}

func (l *Loader) Skills(ctx context.Context) ([]document.SearchDocument, error) {
	return queryAll(ctx, l.db, skillsQuery, func(rows *sql.Rows) (document.SearchDocument, error) {
		var r SkillRow
		err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.Category, pq.Array(&r.Aliases), &r.UpdatedAt)
		return SkillDocument(r), err
	})
}

func queryAll(
	ctx context.Context,
	db Querier,
	query string,
	scan func(*sql.Rows) (document.SearchDocument, error),
) ([]document.SearchDocument, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying source: %w", err)
	}
	defer rows.Close()

	var docs []document.SearchDocument
	for rows.Next() {
		doc, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning source row: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Bootstrap runs every load concurrently, retrying transient failures, and
// adds each result set to its index in one all-or-nothing batch. The first
// failure cancels the remaining loads.
func Bootstrap(ctx context.Context, sink Sink, loads []Load, retry resilience.RetryConfig) (int, error) {
	logger := slog.Default().With("component", "source-loader")
	g, gctx := errgroup.WithContext(ctx)
	counts := make([]int, len(loads))

	for i, ld := range loads {
		g.Go(func() error {
			start := time.Now()
			var docs []document.SearchDocument
			err := resilience.Retry(gctx, "load "+string(ld.Kind), retry, func(ctx context.Context) error {
				var err error
				docs, err = ld.Fetch(ctx)
				return err
			})
			if err != nil {
				return fmt.Errorf("loading %s documents: %w", ld.Kind, err)
			}
			if err := sink.AddDocuments(ld.Index, docs); err != nil {
				return fmt.Errorf("indexing %s documents into %s: %w", ld.Kind, ld.Index, err)
			}
			counts[i] = len(docs)
			logger.Info("source loaded",
				"kind", ld.Kind,
				"index", ld.Index,
				"documents", len(docs),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}
