package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/go-faster/errors"

	"github.com/xenking/scan-and-go/internal/kiosk"
)

const helpText = `Commands:
  start | stop          turn the scanner on or off
  scan <code>           simulate a scan (no scanner device)
  + | - | qty <n>       change the quantity of the scanned item
  confirm | dismiss     add the scanned item to the cart or drop it
  cart | pay | reset    show the cart, pay, start a new checkout
  mode                  toggle checkout and admin mode
  code | name | price <value>, submit   register a product (admin)
  state                 dump the session as JSON
  quit`

var errQuit = errors.New("quit")

// repl reads operator commands and drives the kiosk.
type repl struct {
	kiosk *kiosk.Kiosk
	// feed is the scanner input when no device is configured.
	feed io.Writer

	mu  sync.Mutex
	out io.Writer
}

func (r *repl) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, format+"\n", args...)
}

func (r *repl) notify(n kiosk.Notice) {
	r.printf("[%s] %s", n.Level, n.Message)
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		s := bufio.NewScanner(in)
		for s.Scan() {
			select {
			case lines <- s.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- s.Err()
		close(lines)
	}()

	r.printf("Type help for commands.")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					return errors.Wrap(err, "read commands")
				}
				return nil
			}
			err := r.exec(ctx, line)
			switch {
			case errors.Is(err, errQuit):
				return nil
			case err != nil:
				r.printf("error: %v", err)
			}
		}
	}
}

func (r *repl) exec(ctx context.Context, line string) error {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	k := r.kiosk

	switch strings.ToLower(cmd) {
	case "":
		return nil
	case "help", "?":
		r.printf("%s", helpText)
	case "quit", "exit":
		return errQuit
	case "start":
		if err := k.StartScanning(ctx); err != nil {
			return err
		}
		r.printf("scanning")
	case "stop":
		return k.StopScanning(ctx)
	case "scan":
		return r.scan(arg)
	case "mode":
		mode, err := k.SwitchMode(ctx)
		if err != nil {
			return err
		}
		r.printf("mode: %s", mode)
	case "state":
		return r.printState()
	case "+", "-", "qty", "confirm", "dismiss", "cart", "pay", "reset":
		if err := r.require(kiosk.ModeCheckout); err != nil {
			return err
		}
		return r.checkout(cmd, arg)
	case "code", "name", "price", "submit":
		if err := r.require(kiosk.ModeAdmin); err != nil {
			return err
		}
		return r.admin(ctx, cmd, arg)
	default:
		return errors.Errorf("unknown command %q, type help", cmd)
	}
	return nil
}

func (r *repl) require(mode kiosk.Mode) error {
	if got := r.kiosk.Mode(); got != mode {
		return errors.Errorf("not available in %s mode", got)
	}
	return nil
}

func (r *repl) scan(code string) error {
	if r.feed == nil {
		return errors.New("codes are read from the scanner device")
	}
	if code == "" {
		return errors.New("usage: scan <code>")
	}
	if !r.kiosk.Snapshot().Scan.Active {
		return errors.New("scanner is off, type start")
	}
	_, err := io.WriteString(r.feed, code+"\n")
	return err
}

func (r *repl) checkout(cmd, arg string) error {
	m := r.kiosk.Checkout()

	switch cmd {
	case "+", "-", "qty":
		var (
			n   int
			err error
		)
		switch cmd {
		case "+":
			n, err = m.Increment()
		case "-":
			n, err = m.Decrement()
		default:
			q, convErr := strconv.Atoi(arg)
			if convErr != nil {
				return errors.Errorf("qty: %q is not a number", arg)
			}
			n, err = m.SetQuantity(q)
		}
		if err != nil {
			return err
		}
		r.printf("quantity: %d", n)
	case "confirm":
		item, err := r.kiosk.Confirm()
		if err != nil {
			return err
		}
		r.printf("added %d x %s = %s", item.Quantity, item.Name, item.LineTotal.StringFixed(2))
	case "dismiss":
		return r.kiosk.Dismiss()
	case "cart":
		r.printCart()
	case "pay":
		if err := m.Pay(); err != nil {
			return err
		}
		r.printf("processing payment")
	case "reset":
		return m.Reset()
	}
	return nil
}

func (r *repl) admin(ctx context.Context, cmd, arg string) error {
	f := r.kiosk.Admin()

	switch cmd {
	case "code":
		return f.SetCode(arg)
	case "name":
		return f.SetName(arg)
	case "price":
		return f.SetPrice(arg)
	case "submit":
		// The outcome is reported through a notice.
		_, _ = r.kiosk.Submit(ctx)
	}
	return nil
}

func (r *repl) printCart() {
	s := r.kiosk.Snapshot().Checkout
	if len(s.Cart) == 0 {
		r.printf("cart is empty")
		return
	}

	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CODE\tNAME\tQTY\tPRICE\tTOTAL")
	for _, item := range s.Cart {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			item.Code, item.Name, item.Quantity, item.UnitPrice.StringFixed(2), item.LineTotal.StringFixed(2))
	}
	_, _ = fmt.Fprintf(tw, "\t\t%d\t\t%s\n", s.Cart.Quantity(), s.Total.StringFixed(2))
	_ = tw.Flush()
	r.printf("%s", strings.TrimRight(b.String(), "\n"))
}

func (r *repl) printState() error {
	data, err := json.MarshalIndent(r.kiosk.Snapshot(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode state")
	}
	r.printf("%s", data)
	return nil
}
