package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

func init() {
	sqlite_vec.Auto()
}

// documentSchemaSQL returns the DDL for the document tables. embeddingDim
// controls the vec0 virtual table dimension.
func documentSchemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    file_name TEXT NOT NULL,
    content_type TEXT NOT NULL,
    uploaded_by TEXT,
    uploaded_at DATETIME NOT NULL,
    file_size INTEGER NOT NULL,
    metadata JSON
);

CREATE INDEX IF NOT EXISTS idx_documents_file_hash
    ON documents(json_extract(metadata, '$.FileHash'));

CREATE TABLE IF NOT EXISTS chunks (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    chunk_index INTEGER NOT NULL,
    content TEXT NOT NULL,
    start_position INTEGER NOT NULL,
    end_position INTEGER NOT NULL,
    document_type TEXT
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);

CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
    chunk_seq INTEGER PRIMARY KEY,
    embedding float[%d] distance_metric=cosine
);
`, embeddingDim)
}

// SqliteDocumentStore persists documents in SQLite and serves KNN search
// through the sqlite-vec extension. Chunk vectors live in the vec_chunks
// virtual table keyed by the chunk's rowid.
type SqliteDocumentStore struct {
	db           *sql.DB
	embeddingDim int
}

func NewSqliteDocumentStore(path string, embeddingDim int) (*SqliteDocumentStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if _, err := db.Exec(documentSchemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create document schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &SqliteDocumentStore{db: db, embeddingDim: embeddingDim}, nil
}

func (s *SqliteDocumentStore) Close() error {
	return s.db.Close()
}

func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func deserializeFloat32(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

func (s *SqliteDocumentStore) Upsert(ctx context.Context, doc *models.Document) error {
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"DELETE FROM vec_chunks WHERE chunk_seq IN (SELECT seq FROM chunks WHERE document_id = ?)",
		doc.ID.String())
	if err != nil {
		return fmt.Errorf("failed to delete old vectors: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", doc.ID.String()); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, file_name, content_type, uploaded_by, uploaded_at, file_size, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_name = excluded.file_name,
			content_type = excluded.content_type,
			uploaded_by = excluded.uploaded_by,
			uploaded_at = excluded.uploaded_at,
			file_size = excluded.file_size,
			metadata = excluded.metadata
	`, doc.ID.String(), doc.FileName, doc.ContentType, doc.UploadedBy, doc.UploadedAt.UTC(), doc.FileSize, string(metadata))
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	for i := range doc.Chunks {
		c := &doc.Chunks[i]
		res, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (id, document_id, chunk_index, content, start_position, end_position, document_type)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, c.ID.String(), doc.ID.String(), c.ChunkIndex, c.Content, c.StartPosition, c.EndPosition, c.DocumentType)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.ChunkIndex, err)
		}
		if len(c.Embedding) == 0 {
			continue
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read chunk rowid: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO vec_chunks (chunk_seq, embedding) VALUES (?, ?)",
			seq, serializeFloat32(c.Embedding))
		if err != nil {
			return fmt.Errorf("failed to insert chunk vector: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document: %w", err)
	}
	return nil
}

func (s *SqliteDocumentStore) scanDocument(ctx context.Context, row *sql.Row) (*models.Document, error) {
	var doc models.Document
	var id string
	var metadata sql.NullString
	if err := row.Scan(&id, &doc.FileName, &doc.ContentType, &doc.UploadedBy, &doc.UploadedAt, &doc.FileSize, &metadata); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document id: %w", err)
	}
	doc.ID = parsed
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	chunks, err := s.loadChunks(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	doc.Chunks = chunks
	return &doc, nil
}

func (s *SqliteDocumentStore) loadChunks(ctx context.Context, docID uuid.UUID) ([]models.DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.start_position, c.end_position, c.document_type, v.embedding
		FROM chunks c
		LEFT JOIN vec_chunks v ON v.chunk_seq = c.seq
		WHERE c.document_id = ?
		ORDER BY c.chunk_index
	`, docID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.DocumentChunk
	for rows.Next() {
		c, err := scanChunkRow(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func scanChunkRow(rows *sql.Rows) (models.DocumentChunk, error) {
	var c models.DocumentChunk
	var id, docID string
	var docType sql.NullString
	var embedding []byte
	if err := rows.Scan(&id, &docID, &c.ChunkIndex, &c.Content, &c.StartPosition, &c.EndPosition, &docType, &embedding); err != nil {
		return c, fmt.Errorf("failed to scan chunk: %w", err)
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return c, fmt.Errorf("failed to parse chunk id: %w", err)
	}
	parsedDoc, err := uuid.Parse(docID)
	if err != nil {
		return c, fmt.Errorf("failed to parse chunk document id: %w", err)
	}
	c.ID = parsedID
	c.DocumentID = parsedDoc
	c.DocumentType = docType.String
	if len(embedding) > 0 {
		c.Embedding = deserializeFloat32(embedding)
	}
	return c, nil
}

func (s *SqliteDocumentStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_name, content_type, uploaded_by, uploaded_at, file_size, metadata
		FROM documents WHERE id = ?
	`, id.String())
	doc, err := s.scanDocument(ctx, row)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, models.NewNotFoundError("document", id.String())
	}
	return doc, nil
}

func (s *SqliteDocumentStore) GetAll(ctx context.Context) ([]models.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM documents ORDER BY uploaded_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse document id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	docs := make([]models.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

func (s *SqliteDocumentStore) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"DELETE FROM vec_chunks WHERE chunk_seq IN (SELECT seq FROM chunks WHERE document_id = ?)",
		id.String())
	if err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", id.String()); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return models.NewNotFoundError("document", id.String())
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

func (s *SqliteDocumentStore) DeleteAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM vec_chunks",
		"DELETE FROM chunks",
		"DELETE FROM documents",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to clear documents: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}
	return nil
}

func (s *SqliteDocumentStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

func (s *SqliteDocumentStore) FindByFileHash(ctx context.Context, hash string) (*models.Document, error) {
	if hash == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_name, content_type, uploaded_by, uploaded_at, file_size, metadata
		FROM documents
		WHERE json_extract(metadata, '$.FileHash') = ?
		LIMIT 1
	`, hash)
	return s.scanDocument(ctx, row)
}

func (s *SqliteDocumentStore) SearchChunks(ctx context.Context, query string, queryEmbedding []float32, maxResults int) ([]models.DocumentChunk, error) {
	// vec0 KNN requires a positive k.
	if len(queryEmbedding) == s.embeddingDim && maxResults > 0 {
		results, err := s.vectorSearch(ctx, queryEmbedding, maxResults)
		if err != nil {
			return nil, err
		}
		if len(results) > 0 {
			return results, nil
		}
	}
	return s.lexicalSearch(ctx, query, maxResults)
}

func (s *SqliteDocumentStore) vectorSearch(ctx context.Context, queryEmbedding []float32, k int) ([]models.DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.start_position, c.end_position, c.document_type, v.distance
		FROM vec_chunks v
		JOIN chunks c ON c.seq = v.chunk_seq
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(queryEmbedding), k)
	if err != nil {
		return nil, fmt.Errorf("failed to run vector search: %w", err)
	}
	defer rows.Close()

	var chunks []models.DocumentChunk
	for rows.Next() {
		var c models.DocumentChunk
		var id, docID string
		var docType sql.NullString
		var distance float64
		if err := rows.Scan(&id, &docID, &c.ChunkIndex, &c.Content, &c.StartPosition, &c.EndPosition, &docType, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		parsedID, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("failed to parse chunk id: %w", err)
		}
		parsedDoc, err := uuid.Parse(docID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse chunk document id: %w", err)
		}
		c.ID = parsedID
		c.DocumentID = parsedDoc
		c.DocumentType = docType.String
		c.RelevanceScore = 1.0 - distance
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return topChunks(chunks, k), nil
}

func (s *SqliteDocumentStore) lexicalSearch(ctx context.Context, query string, maxResults int) ([]models.DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.start_position, c.end_position, c.document_type, NULL
		FROM chunks c
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.DocumentChunk
	for rows.Next() {
		c, err := scanChunkRow(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankLexical(chunks, query, maxResults), nil
}

func (s *SqliteDocumentStore) Name() string {
	return "sqlite"
}

func (s *SqliteDocumentStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
