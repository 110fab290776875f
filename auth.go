package dbus

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nilcore/dbus/transport"
)

// authTimeout bounds how long the SASL handshake may take before a
// connection attempt is abandoned.
const authTimeout = 10 * time.Second

// authenticate performs the SASL EXTERNAL handshake against a freshly
// dialed transport, and negotiates UNIX_FD passing.
//
// Unlike most of the DBus wire protocol, SASL is a line-oriented text
// protocol: each step is a CRLF-terminated ASCII line. authenticate
// speaks it directly over the transport's line-reading primitive,
// then switches the connection to binary message framing by sending
// BEGIN.
//
// authenticate returns the server's GUID and whether it agreed to
// pass file descriptors.
func authenticate(t transport.Transport) (guid string, unixFDs bool, err error) {
	if err := t.SetDeadline(time.Now().Add(authTimeout)); err != nil {
		return "", false, err
	}
	defer t.SetDeadline(time.Time{})

	uid := hex.EncodeToString([]byte(strconv.Itoa(os.Getuid())))
	if _, err := fmt.Fprintf(t, "\x00AUTH EXTERNAL %s\r\n", uid); err != nil {
		return "", false, AuthError{fmt.Sprintf("sending AUTH EXTERNAL: %s", err)}
	}

	line, err := readAuthLine(t)
	if err != nil {
		return "", false, err
	}
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "OK" {
		return "", false, AuthError{fmt.Sprintf("AUTH EXTERNAL rejected: %q", line)}
	}
	guid = fields[1]

	if _, err := fmt.Fprint(t, "NEGOTIATE_UNIX_FD\r\n"); err != nil {
		return "", false, AuthError{fmt.Sprintf("sending NEGOTIATE_UNIX_FD: %s", err)}
	}
	line, err = readAuthLine(t)
	if err != nil {
		return "", false, err
	}
	switch {
	case line == "AGREE_UNIX_FD":
		unixFDs = true
	case strings.HasPrefix(line, "ERROR"):
		unixFDs = false
	default:
		return "", false, AuthError{fmt.Sprintf("unexpected reply to NEGOTIATE_UNIX_FD: %q", line)}
	}

	if _, err := fmt.Fprint(t, "BEGIN\r\n"); err != nil {
		return "", false, AuthError{fmt.Sprintf("sending BEGIN: %s", err)}
	}

	return guid, unixFDs, nil
}

func readAuthLine(t transport.Transport) (string, error) {
	line, err := t.ReadLine()
	if err != nil {
		return "", AuthError{fmt.Sprintf("reading handshake response: %s", err)}
	}
	return strings.TrimRight(line, "\r\n"), nil
}
