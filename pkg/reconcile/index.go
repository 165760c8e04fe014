package reconcile

import "github.com/LightningDocs/monthly-double-checker-v2/pkg/models"

// Index maps record identifiers to the metadata listed for them during one run.
// It is built once by enumeration and then only read.
type Index struct {
	entries map[string]models.RecordMetadata
	order   []string
}

// NewIndex creates an empty index
func NewIndex() *Index {
	return &Index{entries: make(map[string]models.RecordMetadata)}
}

// Put stores meta, replacing any earlier entry for the same identifier.
// The replaced entry is returned so the caller can report the duplicate.
func (i *Index) Put(meta models.RecordMetadata) (models.RecordMetadata, bool) {
	previous, exists := i.entries[meta.ID]
	if !exists {
		i.order = append(i.order, meta.ID)
	}
	i.entries[meta.ID] = meta
	return previous, exists
}

// Get returns the metadata for an identifier
func (i *Index) Get(id string) (models.RecordMetadata, bool) {
	meta, ok := i.entries[id]
	return meta, ok
}

// IDs returns the identifiers in the order they were first listed
func (i *Index) IDs() []string {
	out := make([]string, len(i.order))
	copy(out, i.order)
	return out
}

// Len returns the number of distinct identifiers
func (i *Index) Len() int {
	return len(i.order)
}

// Split partitions the identifiers into those absent from and present in known
func (i *Index) Split(known map[string]bool) (fresh, existing []string) {
	for _, id := range i.order {
		if known[id] {
			existing = append(existing, id)
		} else {
			fresh = append(fresh, id)
		}
	}
	return fresh, existing
}
