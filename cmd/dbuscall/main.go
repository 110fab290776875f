package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"regexp"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/mds/slice"
	"github.com/kr/pretty"

	"github.com/nilcore/dbus"
	"github.com/nilcore/dbus/freedesktop/portaldemo"
)

var globalArgs struct {
	UseSessionBus bool   `flag:"session,Connect to session bus instead of system bus"`
	Names         string `flag:"names,Comma-separated list of bus names to claim"`
}

func busClient(ctx context.Context) (*dbus.Client, error) {
	var mk func(context.Context) (*dbus.Conn, error)
	if globalArgs.UseSessionBus {
		mk = dbus.SessionBus
	} else {
		mk = dbus.SystemBus
	}
	conn, err := mk(ctx)
	if err != nil {
		return nil, err
	}

	if globalArgs.Names != "" {
		for _, n := range strings.Split(globalArgs.Names, ",") {
			claim, err := conn.Claim(ctx, n, dbus.ClaimOptions{})
			if err != nil {
				conn.Close()
				return nil, fmt.Errorf("claiming name %q: %w", n, err)
			}
			go func() {
				for isOwner := range claim.Chan() {
					if isOwner {
						fmt.Printf("acquired name %s\n", n)
					} else {
						fmt.Printf("lost name %s\n", n)
					}
				}
			}()
		}
	}

	return dbus.NewClient(conn), nil
}

func main() {
	root := &command.C{
		Name:     "dbus",
		Usage:    "command args...",
		SetFlags: command.Flags(flax.MustBind, &globalArgs),
		Commands: []*command.C{
			{
				Name:  "list",
				Usage: "list args...",
				Commands: []*command.C{
					{
						Name:  "peers",
						Usage: "list peers",
						Help:  "List peers connected to the bus.",
						Run:   command.Adapt(runListPeers),
					},
					{
						Name:  "interfaces",
						Usage: "list interfaces [peer] [object] [interface]",
						Help: `List bus interfaces.

With no arguments, enumerates all discoverable interfaces on named bus
services. Unique bus names (like ":1.234") are skipped because many of
them do not expect to be sent RPCs, and do not respond correctly.

With one argument, enumerate all objects of the given peer and the
interfaces they implement.

With two arguments, enumerate all interfaces on the given peer and
object.

With three arguments, list only the exact peer, object and interface
specified.
`,
						Run: runListInterfaces,
					},
					{
						Name:  "props",
						Usage: "list props [peer] [object] [interface] [property]",
						Help:  "List properties.",
						Run:   runListProps,
					},
				},
			},
			{
				Name:  "ping",
				Usage: "ping peer",
				Help:  "Ping a peer.",
				Run:   command.Adapt(runPing),
			},
			{
				Name:  "whois",
				Usage: "whois peer",
				Help:  "Get a peer's connection credentials.",
				Run:   command.Adapt(runWhois),
			},
			{
				Name:  "listen",
				Usage: "listen",
				Help:  "Listen to bus signals.",
				Run:   command.Adapt(runListen),
			},
			{
				Name:  "features",
				Usage: "features",
				Help:  "List the message bus's feature flags.",
				Run:   command.Adapt(runFeatures),
			},
			{
				Name:  "open-uri",
				Usage: "open-uri uri",
				Help:  "Open a URI using the xdg-desktop-portal OpenURI portal.",
				Run:   command.Adapt(runOpenURI),
			},
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	env := root.NewEnv(nil).SetContext(ctx)
	command.RunOrFail(env, os.Args[1:])
}

func runListPeers(env *command.Env) error {
	cl, err := busClient(env.Context())
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer cl.Conn().Close()

	ctx, cancel := context.WithTimeout(env.Context(), time.Minute)
	defer cancel()
	names, err := cl.Conn().Peers(ctx)
	if err != nil {
		return fmt.Errorf("listing bus names: %w", err)
	}
	slices.Sort(names)
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func runListInterfaces(env *command.Env) error {
	cl, err := busClient(env.Context())
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer cl.Conn().Close()

	args := growTo(env.Args, 3)
	ctx, cancel := context.WithTimeout(env.Context(), time.Minute)
	defer cancel()

	var out indenter
	var prevPeer, prevPath string
	for p, err := range listPeers(ctx, cl, args[0]) {
		if err != nil {
			out.v(err)
			continue
		}
		for iface, err := range listInterfaces(ctx, p, args[1], args[2]) {
			if err != nil {
				out.v(err)
				continue
			}
			if p.Name() != prevPeer {
				out.indent(0)
				if prevPeer != "" {
					out.s("")
				}
				out.f("%s", p.Name())
				out.indent(1)
				out.v(iface.Object().Path())
				out.indent(2)
			} else if string(iface.Object().Path()) != prevPath {
				out.indent(1)
				out.v(iface.Object().Path())
				out.indent(2)
			}

			out.v(iface.Description)
			prevPeer, prevPath = p.Name(), string(iface.Object().Path())
		}
	}

	return nil
}

func runListProps(env *command.Env) error {
	cl, err := busClient(env.Context())
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer cl.Conn().Close()

	args := growTo(env.Args, 4)
	pf, err := regexp.Compile(args[3])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(env.Context(), 10*time.Second)
	defer cancel()
	var out indenter
	var prevPeer, prevPath string
	for p, err := range listPeers(ctx, cl, args[0]) {
		if err != nil {
			out.indent(0)
			out.v(err)
			continue
		}
		for iface, err := range listInterfaces(ctx, p, args[1], args[2]) {
			if err != nil {
				out.indent(0)
				out.v(err)
				continue
			}
			if len(iface.Description.Properties) == 0 {
				continue
			}

			props, err := iface.GetAllProperties(ctx)
			if err != nil {
				out.indent(0)
				out.v(fmt.Errorf("listing properties of %s: %w", iface, err))
				continue
			}
			ks := slices.Sorted(maps.Keys(props))
			ks = slices.Collect(slice.Select(ks, pf.MatchString))
			if len(ks) == 0 {
				continue
			}

			if p.Name() != prevPeer {
				out.indent(0)
				out.v(p.Name())
				out.indent(1)
				out.v(iface.Object().Path())
			} else if string(iface.Object().Path()) != prevPath {
				out.indent(1)
				out.v(iface.Object().Path())
			}
			prevPeer, prevPath = p.Name(), string(iface.Object().Path())

			out.indent(2)
			out.v(iface.Name())
			out.indent(3)
			for _, k := range ks {
				out.f("%s: %# v", k, pretty.Formatter(props[k]))
			}
		}
	}
	return nil
}

func runPing(env *command.Env, peer string) error {
	cl, err := busClient(env.Context())
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer cl.Conn().Close()

	if err := cl.Peer(peer).Ping(env.Context()); err != nil {
		return fmt.Errorf("pinging %s: %w", peer, err)
	}

	return nil
}

func runWhois(env *command.Env, peer string) error {
	cl, err := busClient(env.Context())
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer cl.Conn().Close()

	creds, err := cl.Conn().ConnectionCredentials(env.Context(), peer)
	if err != nil {
		return fmt.Errorf("getting credentials of %s: %w", peer, err)
	}

	for _, k := range slices.Sorted(maps.Keys(creds)) {
		fmt.Printf("%s: %# v\n", k, pretty.Formatter(creds[k]))
	}

	return nil
}

func runListen(env *command.Env) error {
	cl, err := busClient(env.Context())
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer cl.Conn().Close()

	sub, err := cl.Conn().SubscribeSignal(env.Context(), dbus.NewMatch())
	if err != nil {
		return fmt.Errorf("subscribing to all signals: %w", err)
	}
	defer sub.Close()

	fmt.Println("Listening for signals...")
	for {
		select {
		case <-env.Context().Done():
			return nil
		case rec, ok := <-sub.Chan():
			if !ok {
				return nil
			}
			fmt.Printf("Signal %s.%s from %s on object %s:\n  %# v\n\n", rec.Interface, rec.Member, rec.Sender, rec.Path, pretty.Formatter(rec.Body))
			if rec.Overflow {
				fmt.Println("OVERFLOW, some signals lost")
			}
		}
	}
}

func runFeatures(env *command.Env) error {
	cl, err := busClient(env.Context())
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer cl.Conn().Close()

	features, err := cl.Conn().Features(env.Context())
	if err != nil {
		return fmt.Errorf("listing bus features: %w", err)
	}
	slices.Sort(features)
	for _, f := range features {
		fmt.Println(f)
	}
	return nil
}

func runOpenURI(env *command.Env, uri string) error {
	cl, err := busClient(env.Context())
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer cl.Conn().Close()

	ctx, cancel := context.WithTimeout(env.Context(), 30*time.Second)
	defer cancel()

	if err := portaldemo.OpenURI(ctx, cl, uri); err != nil {
		return fmt.Errorf("opening %s: %w", uri, err)
	}
	return nil
}
