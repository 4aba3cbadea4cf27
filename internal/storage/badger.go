package storage

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v3"
	json "github.com/goccy/go-json"
	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

const (
	badgerRecordPrefix = "cap/"
	badgerMetaKey      = "meta"
)

// badgerBackend stores one key per capability record, so a status update
// rewrites only the record it touches.
type badgerBackend struct {
	db *badger.DB
}

type badgerRecord struct {
	Seq    int             `json:"seq"`
	Record json.RawMessage `json:"record"`
}

// NewBadgerBackend opens (or creates) a Badger database in dir.
func NewBadgerBackend(dir string) (Backend, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening registry database %s: %w", dir, err)
	}
	return &badgerBackend{db: db}, nil
}

func recordKey(variant models.Variant, name string) []byte {
	return []byte(badgerRecordPrefix + string(variant) + "/" + name)
}

func (b *badgerBackend) Load() (*Snapshot, error) {
	snap := &Snapshot{}
	found := false

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerMetaKey))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap.Metadata)
		}); err != nil {
			return fmt.Errorf("%w: metadata: %v", ErrStoreCorrupt, err)
		}

		for _, variant := range models.AllVariants {
			recs, err := loadVariant(txn, variant)
			if err != nil {
				return err
			}
			if err := assignVariant(snap, variant, recs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading registry database: %w", err)
	}
	if !found {
		return nil, ErrSnapshotMissing
	}
	return snap, nil
}

func loadVariant(txn *badger.Txn, variant models.Variant) ([]badgerRecord, error) {
	var recs []badgerRecord
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	prefix := []byte(badgerRecordPrefix + string(variant) + "/")
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		var rec badgerRecord
		err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrStoreCorrupt, item.Key(), err)
		}
		recs = append(recs, rec)
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Seq < recs[j].Seq })
	return recs, nil
}

func assignVariant(snap *Snapshot, variant models.Variant, recs []badgerRecord) error {
	var err error
	switch variant {
	case models.VariantNodes:
		snap.Nodes, err = decodeRecords[models.Node](recs)
	case models.VariantWorkflows:
		snap.Workflows, err = decodeRecords[models.Workflow](recs)
	case models.VariantSkills:
		snap.Skills, err = decodeRecords[models.Skill](recs)
	case models.VariantServices:
		snap.Services, err = decodeRecords[models.Service](recs)
	case models.VariantTools:
		snap.Tools, err = decodeRecords[models.Tool](recs)
	}
	return err
}

func decodeRecords[T any](recs []badgerRecord) ([]T, error) {
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		var v T
		if err := json.Unmarshal(r.Record, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (b *badgerBackend) SaveAll(snap *Snapshot) error {
	if err := b.db.DropPrefix([]byte(badgerRecordPrefix)); err != nil {
		return fmt.Errorf("clearing registry database: %w", err)
	}

	snap.Metadata.Version = SnapshotVersion
	snap.Metadata.LastUpdated = time.Now().UTC()

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	meta, err := json.Marshal(snap.Metadata)
	if err != nil {
		return err
	}
	if err := wb.Set([]byte(badgerMetaKey), meta); err != nil {
		return err
	}

	put := func(variant models.Variant, name string, seq int, record any) error {
		val, err := encodeRecord(seq, record)
		if err != nil {
			return err
		}
		return wb.Set(recordKey(variant, name), val)
	}
	for i, n := range snap.Nodes {
		if err := put(models.VariantNodes, n.Name, i, n); err != nil {
			return err
		}
	}
	for i, w := range snap.Workflows {
		if err := put(models.VariantWorkflows, w.Name, i, w); err != nil {
			return err
		}
	}
	for i, s := range snap.Skills {
		if err := put(models.VariantSkills, s.Name, i, s); err != nil {
			return err
		}
	}
	for i, s := range snap.Services {
		if err := put(models.VariantServices, s.Name, i, s); err != nil {
			return err
		}
	}
	for i, t := range snap.Tools {
		if err := put(models.VariantTools, t.Name, i, t); err != nil {
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("writing registry database: %w", err)
	}
	return nil
}

func (b *badgerBackend) SaveRecord(variant models.Variant, name string, seq int, record any, _ *Snapshot) error {
	val, err := encodeRecord(seq, record)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(badgerMetaKey)); errors.Is(err, badger.ErrKeyNotFound) {
			meta, _ := json.Marshal(SnapshotMetadata{Version: SnapshotVersion, LastUpdated: time.Now().UTC()})
			if err := txn.Set([]byte(badgerMetaKey), meta); err != nil {
				return err
			}
		}
		return txn.Set(recordKey(variant, name), val)
	})
}

func encodeRecord(seq int, record any) ([]byte, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return json.Marshal(badgerRecord{Seq: seq, Record: raw})
}

func (b *badgerBackend) Close() error {
	return b.db.Close()
}
