// Package source loads the application's records from PostgreSQL and turns
// them into search documents for the indexes named in the source config.
package source

import (
	"database/sql"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/document"
)

// Metadata keys written by the mappers. Index configs refer to them as
// field names.
const (
	MetaName      = "name"
	MetaSkills    = "skills"
	MetaLocation  = "location"
	MetaYears     = "years"
	MetaLanguage  = "language"
	MetaOwner     = "owner"
	MetaStars     = "stars"
	MetaUsername  = "username"
	MetaActive    = "active"
	MetaCategory  = "category"
	MetaAliases   = "aliases"
	MetaAvailable = "available"
)

type ProfileRow struct {
	ID              string
	FullName        string
	Headline        string
	Bio             string
	Tags            []string
	Skills          []string
	Location        sql.NullString
	YearsExperience sql.NullFloat64
	OpenToWork      bool
	UpdatedAt       time.Time
}

type RepositoryRow struct {
	ID          string
	Name        string
	Description string
	Topics      []string
	Language    sql.NullString
	Owner       string
	Stars       int64
	UpdatedAt   time.Time
}

type UserRow struct {
	ID        string
	Username  string
	FullName  string
	Bio       string
	Location  sql.NullString
	Active    bool
	CreatedAt time.Time
}

type SkillRow struct {
	ID          string
	Name        string
	Description string
	Category    sql.NullString
	Aliases     []string
	UpdatedAt   time.Time
}

func ProfileDocument(row ProfileRow) document.SearchDocument {
	meta := map[string]document.MetaValue{
		MetaName:      document.String(row.FullName),
		MetaSkills:    document.Strings(row.Skills...),
		MetaAvailable: document.Bool(row.OpenToWork),
	}
	if row.Location.Valid {
		meta[MetaLocation] = document.String(row.Location.String)
	}
	if row.YearsExperience.Valid {
		meta[MetaYears] = document.Number(row.YearsExperience.Float64)
	}
	title := row.Headline
	if strings.TrimSpace(title) == "" {
		title = row.FullName
	}
	return document.SearchDocument{
		ID:          row.ID,
		Type:        document.TypeProfile,
		Title:       title,
		Description: row.Bio,
		Tags:        nonNil(row.Tags),
		Metadata:    meta,
		Timestamp:   row.UpdatedAt.UTC(),
	}
}

// RepositoryDocument uses the star count as the baseline score.
func RepositoryDocument(row RepositoryRow) document.SearchDocument {
	meta := map[string]document.MetaValue{
		MetaOwner: document.String(row.Owner),
		MetaStars: document.Number(float64(row.Stars)),
	}
	if row.Language.Valid {
		meta[MetaLanguage] = document.String(row.Language.String)
	}
	return document.SearchDocument{
		ID:          row.ID,
		Type:        document.TypeRepository,
		Title:       row.Name,
		Description: row.Description,
		Tags:        nonNil(row.Topics),
		Metadata:    meta,
		Score:       float64(row.Stars),
		Timestamp:   row.UpdatedAt.UTC(),
	}
}

func UserDocument(row UserRow) document.SearchDocument {
	meta := map[string]document.MetaValue{
		MetaUsername: document.String(row.Username),
		MetaActive:   document.Bool(row.Active),
	}
	if row.Location.Valid {
		meta[MetaLocation] = document.String(row.Location.String)
	}
	title := row.FullName
	if strings.TrimSpace(title) == "" {
		title = row.Username
	}
	return document.SearchDocument{
		ID:          row.ID,
		Type:        document.TypeUser,
		Title:       title,
		Description: row.Bio,
		Tags:        []string{},
		Metadata:    meta,
		Timestamp:   row.CreatedAt.UTC(),
	}
}

func SkillDocument(row SkillRow) document.SearchDocument {
	meta := map[string]document.MetaValue{
		MetaAliases: document.Strings(row.Aliases...),
	}
	var tags []string
	if row.Category.Valid {
		meta[MetaCategory] = document.String(row.Category.String)
		tags = append(tags, row.Category.String)
	}
	return document.SearchDocument{
		ID:          row.ID,
		Type:        document.TypeSkill,
		Title:       row.Name,
		Description: row.Description,
		Tags:        nonNil(tags),
		Metadata:    meta,
		Timestamp:   row.UpdatedAt.UTC(),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
