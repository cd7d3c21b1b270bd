package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// execIface is the command surface the REPL dispatches to. App satisfies it;
// tests provide a stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Status(ctx context.Context) error
}

// runREPL reads one command per line from in and dispatches it to a until
// EOF, "exit" or "quit", or ctx is cancelled. Command errors are printed and
// the loop carries on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, in *bufio.Reader, out io.Writer) {
	for {
		if ctx.Err() != nil {
			return
		}

		_, _ = fmt.Fprintf(out, "freight %s> ", statusFn())
		line, err := in.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		var cmdErr error
		switch cmd := parts[0]; cmd {
		case "help":
			if a.isLoggedIn() {
				_, _ = fmt.Fprintln(out, "Available commands: whoami, status, logout, exit")
			} else {
				_, _ = fmt.Fprintln(out, "Available commands: login, register, status, exit")
			}
		case "login":
			cmdErr = a.Login(ctx)
		case "register":
			cmdErr = a.Register(ctx)
		case "logout":
			cmdErr = a.Logout(ctx)
		case "whoami":
			cmdErr = a.WhoAmI(ctx)
		case "status":
			cmdErr = a.Status(ctx)
		case "exit", "quit":
			_, _ = fmt.Fprintln(out, "Bye!")
			return
		default:
			_, _ = fmt.Fprintln(out, "Unknown command:", cmd)
		}

		if cmdErr != nil {
			_, _ = fmt.Fprintln(out, "Error:", describe(cmdErr))
		}
	}
}
