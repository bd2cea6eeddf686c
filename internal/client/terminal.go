package client

import (
	"os"

	"golang.org/x/term"
)

// rawTerminal holds the state needed to restore a tty to the mode it
// was in before MakeRaw. Applying it to a non-tty fd is a no-op.
type rawTerminal struct {
	fd    int
	state *term.State
}

// enterRawTerminal puts f into raw mode if it's a terminal, returning
// a guard whose restore() undoes it. Safe to call on a non-tty; in
// that case restore() does nothing.
func enterRawTerminal(f *os.File) (*rawTerminal, error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return &rawTerminal{fd: fd}, nil
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return &rawTerminal{fd: fd, state: state}, nil
}

func (r *rawTerminal) restore() {
	if r.state == nil {
		return
	}
	_ = term.Restore(r.fd, r.state)
}
