// Package heapdump writes and reads diagnostic snapshots of a heap's
// external pointers as canonical CBOR.
package heapdump

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/chazu/extptr/vm"
)

// Version is written into every snapshot.
const Version = 1

// cborEncMode uses canonical mode so equal snapshots encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("heapdump: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Snapshot is the state of one heap at one instant.
type Snapshot struct {
	Version     int              `cbor:"1,keyasint"`
	HeapID      uuid.UUID        `cbor:"2,keyasint"`
	TakenAt     time.Time        `cbor:"3,keyasint"`
	Strings     int              `cbor:"4,keyasint"`
	Lists       int              `cbor:"5,keyasint"`
	Externals   []ExternalRecord `cbor:"6,keyasint,omitempty"`
	LastCollect *CollectRecord   `cbor:"7,keyasint,omitempty"`
}

// ExternalRecord describes one external pointer. Addresses are not
// recorded; they mean nothing outside the process.
type ExternalRecord struct {
	ID           uint32 `cbor:"1,keyasint"`
	Tag          string `cbor:"2,keyasint"`
	Protected    string `cbor:"3,keyasint"` // kind of the protected value
	Live         bool   `cbor:"4,keyasint"`
	HasFinalizer bool   `cbor:"5,keyasint"`
	Finalized    bool   `cbor:"6,keyasint"`
}

// CollectRecord mirrors vm.CollectStats.
type CollectRecord struct {
	Strings         int           `cbor:"1,keyasint"`
	Lists           int           `cbor:"2,keyasint"`
	Externals       int           `cbor:"3,keyasint"`
	Finalized       int           `cbor:"4,keyasint"`
	FinalizerPanics int           `cbor:"5,keyasint"`
	Duration        time.Duration `cbor:"6,keyasint"`
	At              time.Time     `cbor:"7,keyasint"`
}

// Take captures h.
func Take(h *vm.Heap) *Snapshot {
	s := &Snapshot{
		Version: Version,
		HeapID:  h.ID(),
		TakenAt: time.Now().UTC(),
		Strings: h.StringCount(),
		Lists:   h.ListCount(),
	}
	for _, e := range h.Externals() {
		s.Externals = append(s.Externals, ExternalRecord{
			ID:           e.ID,
			Tag:          e.Tag,
			Protected:    e.Protected.String(),
			Live:         e.Live,
			HasFinalizer: e.HasFinalizer,
			Finalized:    e.Finalized,
		})
	}
	if st := h.LastStats(); st != nil {
		s.LastCollect = &CollectRecord{
			Strings:         st.Strings,
			Lists:           st.Lists,
			Externals:       st.Externals,
			Finalized:       st.Finalized,
			FinalizerPanics: st.FinalizerPanics,
			Duration:        st.Duration,
			At:              st.Timestamp.UTC(),
		}
	}
	return s
}

// ByTag counts the external pointers per tag.
func (s *Snapshot) ByTag() map[string]int {
	counts := make(map[string]int)
	for _, e := range s.Externals {
		counts[e.Tag]++
	}
	return counts
}

// Marshal serializes a Snapshot to CBOR bytes.
func Marshal(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// Unmarshal deserializes a Snapshot from CBOR bytes.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("heapdump: unmarshal snapshot: %w", err)
	}
	if s.Version != Version {
		return nil, fmt.Errorf("heapdump: unsupported snapshot version %d", s.Version)
	}
	return &s, nil
}

// Write encodes s to w.
func Write(w io.Writer, s *Snapshot) error {
	if err := cborEncMode.NewEncoder(w).Encode(s); err != nil {
		return fmt.Errorf("heapdump: encode snapshot: %w", err)
	}
	return nil
}

// WriteFile encodes s to the file at path.
func WriteFile(path string, s *Snapshot) error {
	data, err := Marshal(s)
	if err != nil {
		return fmt.Errorf("heapdump: encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("heapdump: %w", err)
	}
	return nil
}

// ReadFile decodes the snapshot stored at path.
func ReadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("heapdump: %w", err)
	}
	return Unmarshal(data)
}

// WriteText prints s in a human-readable form.
func WriteText(w io.Writer, s *Snapshot) error {
	var err error
	printf := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	printf("heap %s at %s\n", s.HeapID, s.TakenAt.Format(time.RFC3339))
	printf("  strings: %d  lists: %d  external pointers: %d\n", s.Strings, s.Lists, len(s.Externals))

	tags := s.ByTag()
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		printf("  %6d  %s\n", tags[name], name)
	}

	if c := s.LastCollect; c != nil {
		printf("last collection: %d finalized, %d panicked, swept %d/%d/%d in %s\n",
			c.Finalized, c.FinalizerPanics, c.Strings, c.Lists, c.Externals, c.Duration)
	}
	return err
}
