// Package portaldemo demonstrates the xdg-desktop-portal Request
// pattern (spec.md 4.4) against a real portal interface,
// org.freedesktop.portal.Desktop's OpenURI method.
package portaldemo

import (
	"context"
	"fmt"

	"github.com/nilcore/dbus"
)

const (
	destination = "org.freedesktop.portal.Desktop"
	objectPath  = dbus.ObjectPath("/org/freedesktop/portal/desktop")
	ifaceOpenURI = "org.freedesktop.portal.OpenURI"
)

var optionsDictSig = dbus.MustParseSignature("a{sv}").Single()

// OpenURI asks the desktop portal to open uri with the user's
// preferred handler, and waits for the portal's Response signal
// before returning.
//
// OpenURI always passes "" (no parent) as the parent window handle,
// since dbuscall has no windowing system to identify a window by.
func OpenURI(ctx context.Context, cl *dbus.Client, uri string) error {
	token := dbus.NewPortalToken()
	options := dbus.ArrayOf(optionsDictSig, []dbus.Value{
		dbus.DictEntryOf(dbus.Str("handle_token"), dbus.VariantOf(dbus.Str(token))),
	})

	sig := dbus.MustParseSignature("ssa{sv}")
	body := []dbus.Value{dbus.Str(""), dbus.Str(uri), options}

	results, err := cl.PortalCall(ctx, destination, objectPath, ifaceOpenURI, "OpenURI", sig, body, token)
	if err != nil {
		return err
	}
	_ = results // OpenURI's results dict is currently empty on success
	fmt.Printf("opened %s\n", uri)
	return nil
}
