package pass

import "os"

// Sink is an append-only patch journal: the pass driver writes a patch
// segment to it and reports the byte offset the segment started at, so
// a later replay can seek straight to it.
type Sink interface {
	// Offset returns the current write position.
	Offset() (int64, error)
	// Write appends p and returns the number of bytes written.
	Write(p []byte) (int, error)
}

// FileSink is a Sink backed by an append-only *os.File, the concrete
// collaborator behind a `./patches/<name>` journal.
type FileSink struct {
	f *os.File
}

// OpenFileSink opens (creating if necessary) path for append.
func OpenFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileSink{f: f}, nil
}

// Offset returns the file's current size, the position the next Write
// will land at.
func (s *FileSink) Offset() (int64, error) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *FileSink) Write(p []byte) (int, error) {
	return s.f.Write(p)
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	return s.f.Close()
}
