package models

import (
	"sort"

	"github.com/google/uuid"
)

type SourceType string

const (
	SourceTypeDocument SourceType = "Document"
	SourceTypeImage    SourceType = "Image"
	SourceTypeAudio    SourceType = "Audio"
	SourceTypeDatabase SourceType = "Database"
	SourceTypeSystem   SourceType = "System"
)

// Source is a provenance record attached to an answer. Variant fields are
// populated according to Type; common fields always are.
type Source struct {
	Type           SourceType `json:"type"`
	RelevanceScore float64    `json:"relevanceScore"`
	Excerpt        string     `json:"excerpt,omitempty"`
	Location       string     `json:"location,omitempty"`

	// Document, Image, and Audio variants.
	DocumentID    uuid.UUID `json:"documentId,omitempty"`
	FileName      string    `json:"fileName,omitempty"`
	ChunkIndex    int       `json:"chunkIndex,omitempty"`
	StartPosition int       `json:"startPosition,omitempty"`
	EndPosition   int       `json:"endPosition,omitempty"`

	// Audio variant: interval within the recording, in seconds.
	AudioStartSeconds float64 `json:"audioStartSeconds,omitempty"`
	AudioEndSeconds   float64 `json:"audioEndSeconds,omitempty"`

	// Database variant.
	DatabaseID    string   `json:"databaseId,omitempty"`
	DatabaseName  string   `json:"databaseName,omitempty"`
	Tables        []string `json:"tables,omitempty"`
	ExecutedQuery string   `json:"executedQuery,omitempty"`
	RowNumber     int      `json:"rowNumber,omitempty"`
}

// sortKey gives ties between equal-relevance sources a stable identity.
func (s *Source) sortKey() string {
	if s.DatabaseID != "" {
		return s.DatabaseID
	}
	return s.DocumentID.String()
}

// SortSources orders sources by relevance descending. Ties keep a stable
// order by source identity.
func SortSources(sources []Source) {
	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].RelevanceScore != sources[j].RelevanceScore {
			return sources[i].RelevanceScore > sources[j].RelevanceScore
		}
		return sources[i].sortKey() < sources[j].sortKey()
	})
}
