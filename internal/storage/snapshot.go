package storage

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// SnapshotVersion is written into every snapshot's metadata block.
const SnapshotVersion = "1.0.0"

var (
	// ErrNotFound reports a capability name absent from the registry.
	ErrNotFound = errors.New("capability not found")

	// ErrStoreCorrupt reports a persisted snapshot that cannot be parsed. The
	// caller is expected to rediscover capabilities and rebuild the snapshot.
	ErrStoreCorrupt = errors.New("capability snapshot corrupt")

	// ErrSnapshotMissing reports that nothing has been persisted yet.
	ErrSnapshotMissing = errors.New("capability snapshot missing")
)

// SnapshotMetadata describes when and by which format version a snapshot was
// written.
type SnapshotMetadata struct {
	Version     string    `json:"version"`
	LastUpdated time.Time `json:"last_updated"`
}

// Snapshot is the complete set of capability records. Each slice is in
// registry insertion order.
type Snapshot struct {
	Metadata  SnapshotMetadata
	Nodes     []models.Node
	Workflows []models.Workflow
	Skills    []models.Skill
	Services  []models.Service
	Tools     []models.Tool
}

// snapshotDocument is the on-disk layout: each variant is a JSON object keyed
// by record name whose key order is the registry order.
type snapshotDocument struct {
	Metadata  SnapshotMetadata                `json:"metadata"`
	Nodes     orderedRecords[models.Node]     `json:"nodes"`
	Workflows orderedRecords[models.Workflow] `json:"workflows"`
	Skills    orderedRecords[models.Skill]    `json:"skills"`
	Services  orderedRecords[models.Service]  `json:"services"`
	Tools     orderedRecords[models.Tool]     `json:"tools"`
}

type namedRecord[T any] struct {
	name   string
	record T
}

// orderedRecords is a name-keyed JSON object that keeps key order on both
// encode and decode.
type orderedRecords[T any] []namedRecord[T]

func (o orderedRecords[T]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, nr := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(nr.name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(nr.record)
		if err != nil {
			return nil, fmt.Errorf("encoding %q: %w", nr.name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *orderedRecords[T]) UnmarshalJSON(data []byte) error {
	*o = nil
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	seen := make(map[string]struct{})
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected record name, got %v", keyTok)
		}
		var rec T
		if err := dec.Decode(&rec); err != nil {
			return fmt.Errorf("decoding %q: %w", key, err)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate record %q", key)
		}
		seen[key] = struct{}{}
		*o = append(*o, namedRecord[T]{name: key, record: rec})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

func toOrdered[T any](records []T, name func(T) string) orderedRecords[T] {
	out := make(orderedRecords[T], 0, len(records))
	for _, r := range records {
		out = append(out, namedRecord[T]{name: name(r), record: r})
	}
	return out
}

// fromOrdered returns the records in key order. A record whose own name is
// empty takes the key as its name.
func fromOrdered[T any](o orderedRecords[T], setName func(*T, string), name func(T) string) []T {
	out := make([]T, 0, len(o))
	for _, nr := range o {
		r := nr.record
		if name(r) == "" {
			setName(&r, nr.name)
		}
		out = append(out, r)
	}
	return out
}

// EncodeSnapshot renders a snapshot as indented JSON.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	doc := snapshotDocument{
		Metadata:  s.Metadata,
		Nodes:     toOrdered(s.Nodes, func(n models.Node) string { return n.Name }),
		Workflows: toOrdered(s.Workflows, func(w models.Workflow) string { return w.Name }),
		Skills:    toOrdered(s.Skills, func(sk models.Skill) string { return sk.Name }),
		Services:  toOrdered(s.Services, func(sv models.Service) string { return sv.Name }),
		Tools:     toOrdered(s.Tools, func(t models.Tool) string { return t.Name }),
	}
	if doc.Metadata.Version == "" {
		doc.Metadata.Version = SnapshotVersion
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeSnapshot parses a snapshot document. Any parse failure is reported
// as ErrStoreCorrupt.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var doc snapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}
	s := &Snapshot{
		Metadata:  doc.Metadata,
		Nodes:     fromOrdered(doc.Nodes, func(n *models.Node, k string) { n.Name = k }, func(n models.Node) string { return n.Name }),
		Workflows: fromOrdered(doc.Workflows, func(w *models.Workflow, k string) { w.Name = k }, func(w models.Workflow) string { return w.Name }),
		Skills:    fromOrdered(doc.Skills, func(sk *models.Skill, k string) { sk.Name = k }, func(sk models.Skill) string { return sk.Name }),
		Services:  fromOrdered(doc.Services, func(sv *models.Service, k string) { sv.Name = k }, func(sv models.Service) string { return sv.Name }),
		Tools:     fromOrdered(doc.Tools, func(t *models.Tool, k string) { t.Name = k }, func(t models.Tool) string { return t.Name }),
	}
	return s, nil
}
