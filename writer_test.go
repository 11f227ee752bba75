package osc

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriterSingleMessage(t *testing.T) {
	msg := &Message{
		Address:   "/muse/0/eeg",
		Arguments: []Argument{AsFloat32(0.25), AsInt32(7), AsString("ok"), &Blob{1, 2, 3}},
	}
	w := NewWriter(make([]byte, 0, 1024))
	if err := w.WriteMessage(msg); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if !w.Complete() {
		t.Fatalf("Complete() = false after one message")
	}
	if want := msg.Append(nil); !bytes.Equal(w.Bytes(), want) {
		t.Errorf("Writer bytes:\n got: %q\nwant: %q", w.Bytes(), want)
	}
}

func TestWriterBundleMatchesAppend(t *testing.T) {
	b := &Bundle{Elements: []Element{
		&Message{Address: "/a", Arguments: []Argument{AsInt32(1), AsInt32(2), AsInt32(3), AsInt32(4)}},
		&Bundle{Elements: []Element{
			&Message{Address: "/b", Arguments: []Argument{AsString("hello")}},
		}},
		&Message{Address: "/c", Arguments: []Argument{}},
	}}
	w := NewWriter(make([]byte, 0, 512))
	steps := []func() error{
		func() error { return w.BeginBundle(TimeTag{}) },
		func() error { return w.WriteMessage(b.Elements[0].(*Message)) },
		func() error { return w.BeginBundle(TimeTag{}) },
		func() error { return w.WriteMessage(b.Elements[1].(*Bundle).Elements[0].(*Message)) },
		func() error { return w.EndBundle() },
		func() error { return w.WriteMessage(b.Elements[2].(*Message)) },
		func() error { return w.EndBundle() },
	}
	for i, s := range steps {
		if err := s(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if want := b.Append(nil); !bytes.Equal(w.Bytes(), want) {
		t.Fatalf("Writer bytes:\n got: %q\nwant: %q", w.Bytes(), want)
	}
	e, err := ParsePacket(w.Bytes())
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if diff := cmp.Diff(Flatten(b), Flatten(e)); diff != "" {
		t.Errorf("messages differ (-want +got):\n%s", diff)
	}
}

func TestWriterState(t *testing.T) {
	w := NewWriter(make([]byte, 0, 256))
	if err := w.Arg(AsInt32(1)); !errors.Is(err, ErrWriterState) {
		t.Errorf("Arg outside message = %v, want ErrWriterState", err)
	}
	if err := w.EndMessage(); !errors.Is(err, ErrWriterState) {
		t.Errorf("EndMessage without message = %v, want ErrWriterState", err)
	}
	if err := w.EndBundle(); !errors.Is(err, ErrWriterState) {
		t.Errorf("EndBundle without bundle = %v, want ErrWriterState", err)
	}
	if err := w.WriteMessage(&Message{Address: "/one"}); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	// A second top level element needs a bundle.
	if err := w.BeginMessage("/two"); !errors.Is(err, ErrWriterState) {
		t.Errorf("second top level message = %v, want ErrWriterState", err)
	}
	w.Reset(make([]byte, 0, 256))
	if err := w.BeginMessage("/x"); err != nil {
		t.Fatalf("BeginMessage: %v", err)
	}
	if err := w.BeginBundle(TimeTag{}); !errors.Is(err, ErrWriterState) {
		t.Errorf("bundle inside message = %v, want ErrWriterState", err)
	}
	if w.Complete() {
		t.Errorf("Complete() = true with a message open")
	}
}

func TestWriterBufferFull(t *testing.T) {
	// "/abc" is 8 bytes, ",i" another 4, each int 4.
	w := NewWriter(make([]byte, 0, 20))
	if err := w.BeginMessage("/abc"); err != nil {
		t.Fatalf("BeginMessage: %v", err)
	}
	if err := w.Arg(AsInt32(1)); err != nil {
		t.Fatalf("first Arg: %v", err)
	}
	if err := w.Arg(AsInt32(2)); err != nil {
		t.Fatalf("second Arg: %v", err)
	}
	before := append([]byte(nil), w.Bytes()...)
	if err := w.Arg(AsInt32(3)); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("third Arg = %v, want ErrBufferFull", err)
	}
	if !bytes.Equal(before, w.Bytes()) {
		t.Errorf("failed Arg changed the buffer: %q -> %q", before, w.Bytes())
	}
	if err := w.EndMessage(); err != nil {
		t.Fatalf("EndMessage: %v", err)
	}
	if w.Len() != 20 {
		t.Errorf("Len() = %d, want 20", w.Len())
	}
	m, err := ParseMessage(w.Bytes())
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if want := []Argument{AsInt32(1), AsInt32(2)}; !cmp.Equal(m.Arguments, want) {
		t.Errorf("arguments = %v, want %v", m.Arguments, want)
	}
}
