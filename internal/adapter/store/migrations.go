package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
	"quotesearch/internal/domain"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var keyIndexInfo = []byte("index_info")

// IndexInfo records what an index was built with. Vectors from a different
// model or dimension are not comparable, so a mismatch refuses to open.
type IndexInfo struct {
	Version   int    `json:"version"`
	Dimension int    `json:"dimension"`
	Model     string `json:"model"`
}

// Info returns the stored index info.
func (s *BoltIndex) Info() (IndexInfo, error) {
	var info IndexInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyIndexInfo)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &info)
	})
	return info, err
}

func (s *BoltIndex) checkInfo(dimension int, model string) error {
	info, err := s.Info()
	if err != nil {
		return fmt.Errorf("failed to read index info: %w", err)
	}

	if info.Version == 0 {
		return s.putInfo(IndexInfo{Version: CurrentSchemaVersion, Dimension: dimension, Model: model})
	}

	if err := CheckInfo(info, dimension, model); err != nil {
		return err
	}

	if info.Model == "" && model != "" {
		info.Model = model
		return s.putInfo(info)
	}
	return nil
}

func (s *BoltIndex) putInfo(info IndexInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(info)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyIndexInfo, data)
	})
}

// CheckInfo compares stored index info with the running configuration.
func CheckInfo(info IndexInfo, dimension int, model string) error {
	if info.Version > CurrentSchemaVersion {
		return fmt.Errorf("index schema version %d is newer than supported %d", info.Version, CurrentSchemaVersion)
	}
	if info.Dimension != dimension {
		return fmt.Errorf("index built with dimension %d, configured %d: %w", info.Dimension, dimension, domain.ErrDimensionMismatch)
	}
	if info.Model != "" && model != "" && info.Model != model {
		return fmt.Errorf("index built with embedding model %q, configured %q", info.Model, model)
	}
	return nil
}
