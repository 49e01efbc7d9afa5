package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event reports.
type Stage string

// Supported progress stages.
const (
	StageBookStart    Stage = "BOOK_START"
	StageChapterDone  Stage = "CHAPTER_DONE"
	StageChapterError Stage = "CHAPTER_ERROR"
	StageBookDone     Stage = "BOOK_DONE"
)

// Event captures one milestone of an archive run.
type Event struct {
	// RunID groups the events of one add or refresh invocation.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Book is the book name the milestone belongs to.
	Book string
	// Chapter is the chapter number for chapter stages.
	Chapter uint16
	// Site is the host the chapter was read from.
	Site string
	// URL is the chapter page URL.
	URL string
	// Contents counts the content units saved for a chapter.
	Contents int
	// Total is the number of chapters a book run expects to process.
	Total int
	// Dur captures the time spent on the chapter or book.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Book == "" {
		return errors.New("book is required")
	}
	switch e.Stage {
	case StageBookStart, StageBookDone:
	case StageChapterDone, StageChapterError:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// NewRunID returns a fresh random run identifier.
func NewRunID() [16]byte {
	return UUIDToBytes(uuid.New())
}
