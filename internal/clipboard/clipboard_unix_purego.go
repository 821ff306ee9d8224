//go:build (linux || freebsd || openbsd || netbsd || dragonfly) && !cgo

package clipboard

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// readTimeout bounds how long ReadImage waits for the selection owner.
var readTimeout = 2 * time.Second

var (
	initOnce sync.Once
	initErr  error
	owner    *x11Owner
)

func ensureInit() error {
	initOnce.Do(func() {
		if !hasDisplay() {
			initErr = errNoDisplay
			return
		}
		o, err := newX11Owner()
		if err != nil {
			initErr = fmt.Errorf("connect to X server: %w", err)
			return
		}
		owner = o
	})
	return initErr
}

// WriteImage publishes img as PNG. The image stays available while the
// process runs or until another client takes the clipboard.
func WriteImage(img image.Image) error {
	if err := ensureInit(); err != nil {
		return err
	}
	data, err := encodePNG(img)
	if err != nil {
		return err
	}
	return owner.own(data)
}

// ReadImage decodes the PNG currently on the clipboard.
func ReadImage() (image.Image, error) {
	if err := ensureInit(); err != nil {
		return nil, err
	}
	data, err := owner.read(owner.atoms.png)
	if err != nil {
		return nil, err
	}
	return decodePNG(data)
}

// WriteText publishes text through xclip, xsel or wl-copy.
func WriteText(text string) error {
	if !hasDisplay() {
		return errNoDisplay
	}
	return clipboard.WriteAll(text)
}

// ReadText returns the text currently on the clipboard.
func ReadText() (string, error) {
	if !hasDisplay() {
		return "", errNoDisplay
	}
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("read text: %w", ErrEmpty)
	}
	return text, nil
}

type x11Atoms struct {
	clipboard xproto.Atom
	targets   xproto.Atom
	png       xproto.Atom
	property  xproto.Atom
}

// x11Owner holds a hidden window that owns the CLIPBOARD selection.
type x11Owner struct {
	conn   *xgb.Conn
	window xproto.Window
	root   xproto.Window
	atoms  x11Atoms

	mu   sync.RWMutex
	data []byte
}

func newX11Owner() (*x11Owner, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, err
	}
	screen := xproto.Setup(conn).DefaultScreen(conn)
	window, err := createWindow(conn, screen.Root)
	if err != nil {
		conn.Close()
		return nil, err
	}
	atoms, err := internAtoms(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	o := &x11Owner{conn: conn, window: window, root: screen.Root, atoms: atoms}
	go o.serve()
	return o, nil
}

func createWindow(conn *xgb.Conn, root xproto.Window) (xproto.Window, error) {
	window, err := xproto.NewWindowId(conn)
	if err != nil {
		return 0, err
	}
	err = xproto.CreateWindowChecked(conn, 0, window, root, 0, 0, 1, 1, 0,
		xproto.WindowClassInputOnly, 0, xproto.CwEventMask,
		[]uint32{xproto.EventMaskPropertyChange}).Check()
	if err != nil {
		return 0, err
	}
	return window, nil
}

func internAtoms(conn *xgb.Conn) (x11Atoms, error) {
	names := []string{"CLIPBOARD", "TARGETS", "image/png", "SKETCHTUTOR_SELECTION"}
	atoms := make([]xproto.Atom, len(names))
	for i, name := range names {
		reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			return x11Atoms{}, fmt.Errorf("intern %s: %w", name, err)
		}
		atoms[i] = reply.Atom
	}
	return x11Atoms{clipboard: atoms[0], targets: atoms[1], png: atoms[2], property: atoms[3]}, nil
}

func (o *x11Owner) own(data []byte) error {
	o.mu.Lock()
	o.data = data
	o.mu.Unlock()
	return xproto.SetSelectionOwnerChecked(o.conn, o.window, o.atoms.clipboard, xproto.TimeCurrentTime).Check()
}

func (o *x11Owner) serve() {
	for {
		ev, err := o.conn.WaitForEvent()
		if err != nil {
			return
		}
		switch e := ev.(type) {
		case xproto.SelectionRequestEvent:
			o.answer(e)
		case xproto.SelectionClearEvent:
			o.mu.Lock()
			o.data = nil
			o.mu.Unlock()
		}
	}
}

// answer replies to a paste request with the PNG or the list of targets.
func (o *x11Owner) answer(e xproto.SelectionRequestEvent) {
	o.mu.RLock()
	data := o.data
	o.mu.RUnlock()

	property := e.Property
	if property == xproto.AtomNone {
		property = e.Target
	}
	switch {
	case e.Target == o.atoms.targets:
		list := []xproto.Atom{o.atoms.targets, o.atoms.png}
		buf := make([]byte, 4*len(list))
		for i, a := range list {
			xgb.Put32(buf[4*i:], uint32(a))
		}
		xproto.ChangeProperty(o.conn, xproto.PropModeReplace, e.Requestor, property, xproto.AtomAtom, 32, uint32(len(list)), buf)
	case e.Target == o.atoms.png && len(data) > 0:
		xproto.ChangeProperty(o.conn, xproto.PropModeReplace, e.Requestor, property, o.atoms.png, 8, uint32(len(data)), data)
	default:
		property = xproto.AtomNone
	}
	notify := xproto.SelectionNotifyEvent{
		Time:      e.Time,
		Requestor: e.Requestor,
		Selection: e.Selection,
		Target:    e.Target,
		Property:  property,
	}
	xproto.SendEvent(o.conn, false, e.Requestor, 0, string(notify.Bytes()))
}

// read asks the current owner to convert the selection to target. It uses
// its own connection so the owner's event loop never sees the reply.
func (o *x11Owner) read(target xproto.Atom) ([]byte, error) {
	o.mu.RLock()
	if data := o.data; len(data) > 0 {
		o.mu.RUnlock()
		return append([]byte(nil), data...), nil
	}
	o.mu.RUnlock()

	conn, err := xgb.NewConn()
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	window, err := createWindow(conn, o.root)
	if err != nil {
		return nil, err
	}
	defer xproto.DestroyWindow(conn, window)

	err = xproto.ConvertSelectionChecked(conn, window, o.atoms.clipboard, target, o.atoms.property, xproto.TimeCurrentTime).Check()
	if err != nil {
		return nil, err
	}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		for {
			ev, err := conn.WaitForEvent()
			if err != nil {
				done <- result{err: err}
				return
			}
			if ev == nil {
				done <- result{err: fmt.Errorf("X connection closed")}
				return
			}
			e, ok := ev.(xproto.SelectionNotifyEvent)
			if !ok {
				continue
			}
			if e.Property == xproto.AtomNone {
				done <- result{err: fmt.Errorf("read image: %w", ErrEmpty)}
				return
			}
			reply, perr := xproto.GetProperty(conn, true, window, e.Property, xproto.GetPropertyTypeAny, 0, (1<<31)-1).Reply()
			if perr != nil {
				done <- result{err: perr}
				return
			}
			done <- result{data: reply.Value}
			return
		}
	}()
	select {
	case r := <-done:
		return r.data, r.err
	case <-time.After(readTimeout):
		return nil, fmt.Errorf("clipboard owner did not answer within %s", readTimeout)
	}
}
