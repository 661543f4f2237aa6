package usersink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	usertypes "github.com/goliatone/go-users/pkg/types"
)

// FileSink is an ActivitySink that appends one JSON document per record.
type FileSink struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

var _ usertypes.ActivitySink = (*FileSink)(nil)

// NewFileSink writes records to w.
func NewFileSink(w io.Writer) *FileSink {
	return &FileSink{w: w, enc: json.NewEncoder(w)}
}

// OpenFileSink appends records to the file at path, creating it when needed.
// The caller closes the returned file.
func OpenFileSink(path string) (*FileSink, *os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("usersink: open %s: %w", path, err)
	}
	return NewFileSink(file), file, nil
}

// Log implements usertypes.ActivitySink.
func (s *FileSink) Log(ctx context.Context, record usertypes.ActivityRecord) error {
	if s == nil || s.enc == nil {
		return nil
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(record); err != nil {
		return fmt.Errorf("usersink: encode record: %w", err)
	}
	return nil
}
