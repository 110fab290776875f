package dbus

import "os"

// FDs is the out-of-band file descriptor table carried alongside a
// DBus message body. Wire bytes never contain descriptors directly: a
// KindUnixFD [Value] holds only an index into this table, and the
// real *os.File travels beside the message as SCM_RIGHTS ancillary
// data (see transport/unix.go).
type FDs struct {
	files []*os.File
}

// Put appends file to the table and returns the index a [Fd] Value
// should reference to point back at it.
func (f *FDs) Put(file *os.File) uint32 {
	f.files = append(f.files, file)
	return uint32(len(f.files) - 1)
}

// Get returns the idx-th file in the table, or nil, false if idx is
// out of range.
func (f *FDs) Get(idx uint32) (*os.File, bool) {
	if int(idx) >= len(f.files) {
		return nil, false
	}
	return f.files[idx], true
}

// Len reports how many descriptors the table holds.
func (f *FDs) Len() int { return len(f.files) }

// Close closes every descriptor in the table, for discarding
// descriptors a caller didn't consume so they aren't leaked.
func (f *FDs) Close() error {
	var err error
	for _, file := range f.files {
		if e := file.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
