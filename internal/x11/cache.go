package x11

import (
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/pkg/errors"
)

// atomTable holds the atoms interned by a client. The atoms the tracker needs
// are interned together when the connection is made; anything else is
// interned the first time it is asked for.
type atomTable struct {
	conn  *xgb.Conn
	mu    sync.Mutex
	atoms map[string]xproto.Atom
}

// newAtomTable sends one InternAtom request per name before waiting on any
// of the replies.
func newAtomTable(conn *xgb.Conn, names ...string) (*atomTable, error) {
	t := &atomTable{
		conn:  conn,
		atoms: make(map[string]xproto.Atom, len(names)),
	}
	pending := make([]xproto.InternAtomCookie, 0, len(names))
	for _, name := range names {
		pending = append(pending, intern(conn, name))
	}
	for i, cookie := range pending {
		reply, err := cookie.Reply()
		if err != nil {
			return nil, errors.Wrapf(err, "intern %s", names[i])
		}
		t.atoms[names[i]] = reply.Atom
	}
	return t, nil
}

// Get returns the atom for name.
func (t *atomTable) Get(name string) (xproto.Atom, error) {
	t.mu.Lock()
	atom, ok := t.atoms[name]
	t.mu.Unlock()
	if ok {
		return atom, nil
	}
	reply, err := intern(t.conn, name).Reply()
	if err != nil {
		return 0, errors.Wrapf(err, "intern %s", name)
	}
	t.mu.Lock()
	t.atoms[name] = reply.Atom
	t.mu.Unlock()
	return reply.Atom, nil
}

func intern(conn *xgb.Conn, name string) xproto.InternAtomCookie {
	return xproto.InternAtom(conn, false, uint16(len(name)), name)
}
