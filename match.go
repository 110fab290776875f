package dbus

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/creachadair/mds/value"
)

// Match is a filter that selects which signals a [SignalSubscription]
// receives.
type Match struct {
	sender     value.Maybe[string]
	path       value.Maybe[ObjectPath]
	pathPrefix value.Maybe[ObjectPath]
	iface      value.Maybe[string]
	member     value.Maybe[string]

	argStr  map[int]string
	argPath map[int]ObjectPath
	arg0NS  value.Maybe[string]
}

// NewMatch returns a new Match that matches every signal.
func NewMatch() *Match {
	return &Match{}
}

// valid reports whether the match is structurally usable: argument
// filters only make sense once a match is narrowed down to one
// specific signal (interface and member both set), since different
// signals disagree about what's in each body position.
func (m *Match) valid() error {
	if len(m.argStr) == 0 && len(m.argPath) == 0 && !m.arg0NS.Present() {
		return nil
	}
	if !m.iface.Present() || !m.member.Present() {
		return errors.New("matches on ArgStr, ArgPathPrefix, or Arg0Namespace must also set Interface and Member")
	}
	return nil
}

// filterString renders m in the string format the message bus expects
// for its AddMatch and RemoveMatch methods.
func (m *Match) filterString() string {
	ms := []string{"type='signal'"}
	kv := func(k, v string) {
		ms = append(ms, fmt.Sprintf("%s=%s", k, escapeMatchArg(v)))
	}

	if s, ok := m.sender.GetOK(); ok {
		kv("sender", s)
	}
	if p, ok := m.path.GetOK(); ok {
		kv("path", string(p))
	}
	if p, ok := m.pathPrefix.GetOK(); ok && p != "/" {
		ms = append(ms, "path_namespace="+string(p))
	}
	if i, ok := m.iface.GetOK(); ok {
		kv("interface", i)
	}
	if me, ok := m.member.GetOK(); ok {
		kv("member", me)
	}
	for _, i := range slices.Sorted(maps.Keys(m.argStr)) {
		kv(fmt.Sprintf("arg%d", i), m.argStr[i])
	}
	for _, i := range slices.Sorted(maps.Keys(m.argPath)) {
		kv(fmt.Sprintf("arg%dpath", i), string(m.argPath[i]))
	}
	if n, ok := m.arg0NS.GetOK(); ok {
		kv("arg0namespace", n)
	}
	return strings.Join(ms, ",")
}

// clone makes a deep copy of m.
func (m *Match) clone() *Match {
	ret := *m
	ret.argStr = maps.Clone(m.argStr)
	ret.argPath = maps.Clone(m.argPath)
	return &ret
}

// matches reports whether msg satisfies the filter.
//
// A Conn receives one stream of signals shared by every active
// subscription, so each [SignalSubscription] reapplies its own Match
// against every signal the bus delivers.
func (m *Match) matches(msg *Message) bool {
	if s, ok := m.sender.GetOK(); ok && msg.Sender() != s {
		return false
	}
	if p, ok := m.path.GetOK(); ok && msg.Path() != p {
		return false
	}
	if p, ok := m.pathPrefix.GetOK(); ok && msg.Path() != p && !msg.Path().isChildOf(p) {
		return false
	}
	if i, ok := m.iface.GetOK(); ok && msg.Interface() != i {
		return false
	}
	if me, ok := m.member.GetOK(); ok && msg.Member() != me {
		return false
	}

	body := msg.Body
	for i, want := range m.argStr {
		if i >= len(body) || body[i].Kind() != KindString || body[i].Str() != want {
			return false
		}
	}
	for i, want := range m.argPath {
		if i >= len(body) {
			return false
		}
		switch body[i].Kind() {
		case KindPath:
			got := body[i].Path()
			if got != want && !got.isChildOf(want) {
				return false
			}
		case KindString:
			got := ObjectPath(body[i].Str())
			if got != want && !got.isChildOf(want) {
				return false
			}
		default:
			return false
		}
	}
	if n, ok := m.arg0NS.GetOK(); ok {
		if len(body) == 0 || body[0].Kind() != KindString {
			return false
		}
		got := body[0].Str()
		if got != n && !strings.HasPrefix(got, n+".") {
			return false
		}
	}

	return true
}

// Sender restricts the Match to signals from a single bus name.
func (m *Match) Sender(name string) *Match {
	m.sender = value.Just(name)
	return m
}

// Path restricts the Match to signals from a single object path.
func (m *Match) Path(p ObjectPath) *Match {
	m.pathPrefix = value.Absent[ObjectPath]()
	m.path = value.Just(p)
	return m
}

// PathPrefix restricts the Match to signals from objects rooted at
// the given path prefix.
//
// For example, PathPrefix("/mascots/gopher") matches signals emitted
// by /mascots/gopher, /mascots/gopher/plushie, and
// /mascots/gopher/art/renee-french, but not /mascots/glenda.
func (m *Match) PathPrefix(p ObjectPath) *Match {
	m.path = value.Absent[ObjectPath]()
	m.pathPrefix = value.Just(p)
	return m
}

// Interface restricts the Match to signals on the given interface.
func (m *Match) Interface(iface string) *Match {
	m.iface = value.Just(iface)
	return m
}

// Member restricts the Match to signals with the given name.
func (m *Match) Member(member string) *Match {
	m.member = value.Just(member)
	return m
}

// ArgStr restricts the Match to signals whose i-th body value is the
// string val. Interface and Member must also be set.
func (m *Match) ArgStr(i int, val string) *Match {
	if m.argStr == nil {
		m.argStr = map[int]string{}
	}
	m.argStr[i] = val
	return m
}

// ArgPathPrefix restricts the Match to signals whose i-th body value
// is an object path (or string) with the given prefix. Interface and
// Member must also be set.
func (m *Match) ArgPathPrefix(i int, val ObjectPath) *Match {
	if m.argPath == nil {
		m.argPath = map[int]ObjectPath{}
	}
	m.argPath[i] = val
	return m
}

// Arg0Namespace restricts the Match to signals whose first body value
// is a bus or interface name in the given dot-separated namespace.
// Interface and Member must also be set.
func (m *Match) Arg0Namespace(val string) *Match {
	m.arg0NS = value.Just(val)
	return m
}

func escapeMatchArg(s string) string {
	s = strings.ReplaceAll(s, "'", "'\\''")
	return "'" + s + "'"
}
