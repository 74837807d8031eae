package sqlitestore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"quotesearch/internal/adapter/similarity"
	"quotesearch/internal/domain"

	_ "modernc.org/sqlite"
)

// Index is a persistent vector index stored in SQLite. Vectors are kept as
// little-endian float32 blobs and scored in process.
type Index struct {
	db        *sql.DB
	dimension int
	mu        sync.RWMutex
}

// Open opens or creates the SQLite index at dbPath. An existing database
// built for another dimension or model is refused.
func Open(dbPath string, dimension int, model string) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid index dimension %d", dimension)
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Index{db: db, dimension: dimension}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := s.checkMetadata(dimension, model); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Index) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS records (
		namespace TEXT NOT NULL,
		id TEXT NOT NULL,
		vector BLOB NOT NULL,
		metadata_json TEXT,
		PRIMARY KEY (namespace, id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Index) checkMetadata(dimension int, model string) error {
	storedDims, err := s.getMetadata("dimensions")
	if err == sql.ErrNoRows {
		if err := s.setMetadata("dimensions", strconv.Itoa(dimension)); err != nil {
			return err
		}
		return s.setMetadata("model", model)
	}
	if err != nil {
		return fmt.Errorf("failed to read dimensions metadata: %w", err)
	}

	if storedDims != strconv.Itoa(dimension) {
		return fmt.Errorf("index built with dimension %s, configured %d: %w", storedDims, dimension, domain.ErrDimensionMismatch)
	}

	storedModel, err := s.getMetadata("model")
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read model metadata: %w", err)
	}
	if storedModel != "" && model != "" && storedModel != model {
		return fmt.Errorf("index built with embedding model %q, configured %q", storedModel, model)
	}
	return nil
}

// Upsert inserts or replaces records in namespace within one transaction.
func (s *Index) Upsert(ctx context.Context, records []domain.Record, namespace string) (int, error) {
	for _, r := range records {
		if r.ID == "" {
			return 0, fmt.Errorf("record without id")
		}
		if len(r.Vector) != s.dimension {
			return 0, fmt.Errorf("record %s: expected %d, got %d: %w", r.ID, s.dimension, len(r.Vector), domain.ErrDimensionMismatch)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite begin: %v: %w", err, domain.ErrIndexUnavailable)
	}
	defer tx.Rollback()

	for _, r := range records {
		metadataJSON, err := json.Marshal(r.Metadata)
		if err != nil {
			return 0, fmt.Errorf("failed to encode metadata: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO records (namespace, id, vector, metadata_json)
			VALUES (?, ?, ?, ?)
		`, namespace, r.ID, encodeVector(r.Vector), string(metadataJSON))
		if err != nil {
			return 0, fmt.Errorf("sqlite upsert %s: %v: %w", r.ID, err, domain.ErrIndexUnavailable)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite commit: %v: %w", err, domain.ErrIndexUnavailable)
	}
	return len(records), nil
}

// Query scores every record of namespace against vector.
func (s *Index) Query(ctx context.Context, vector []float32, topK int, namespace string) ([]domain.Match, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query: expected %d, got %d: %w", s.dimension, len(vector), domain.ErrDimensionMismatch)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, vector, metadata_json FROM records WHERE namespace = ?`, namespace)
	if err != nil {
		return nil, fmt.Errorf("sqlite query: %v: %w", err, domain.ErrIndexUnavailable)
	}
	defer rows.Close()

	var candidates []similarity.Candidate
	for rows.Next() {
		var id string
		var vectorBlob []byte
		var metadataJSON sql.NullString

		if err := rows.Scan(&id, &vectorBlob, &metadataJSON); err != nil {
			return nil, fmt.Errorf("sqlite scan: %v: %w", err, domain.ErrIndexUnavailable)
		}

		var metadata map[string]string
		if metadataJSON.Valid {
			if err := json.Unmarshal([]byte(metadataJSON.String), &metadata); err != nil {
				return nil, fmt.Errorf("record %s: corrupt metadata: %v: %w", id, err, domain.ErrIndexUnavailable)
			}
		}

		if len(vectorBlob) != 4*s.dimension {
			return nil, fmt.Errorf("record %s: corrupt vector of %d bytes: %w", id, len(vectorBlob), domain.ErrIndexUnavailable)
		}

		candidates = append(candidates, similarity.Candidate{
			ID:       id,
			Vector:   decodeVector(vectorBlob),
			Metadata: metadata,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite rows: %v: %w", err, domain.ErrIndexUnavailable)
	}

	return similarity.TopK(vector, candidates, topK), nil
}

func (s *Index) Dimension() int {
	return s.dimension
}

func (s *Index) Stats(ctx context.Context) (domain.IndexStats, error) {
	stats := domain.IndexStats{
		Dimension:  s.dimension,
		Namespaces: make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT namespace, COUNT(*) FROM records GROUP BY namespace`)
	if err != nil {
		return stats, fmt.Errorf("sqlite stats: %v: %w", err, domain.ErrIndexUnavailable)
	}
	defer rows.Close()

	for rows.Next() {
		var ns string
		var count int
		if err := rows.Scan(&ns, &count); err != nil {
			return stats, err
		}
		stats.Namespaces[ns] = count
		stats.Total += count
	}
	return stats, rows.Err()
}

// Close closes the database connection
func (s *Index) Close() error {
	return s.db.Close()
}

func (s *Index) getMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	return value, err
}

func (s *Index) setMetadata(key, value string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO metadata (key, value)
		VALUES (?, ?)
	`, key, value)
	return err
}

// encodeVector encodes a float32 slice to binary
func encodeVector(v []float32) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

// decodeVector decodes binary data to a float32 slice
func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	binary.Read(bytes.NewReader(b), binary.LittleEndian, &v)
	return v
}
