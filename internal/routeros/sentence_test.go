package routeros

import (
	"errors"
	"strings"
	"testing"
)

func TestReadReply_RecordsUntilDone(t *testing.T) {
	input := "!re\n=.id=*1\n=name=user4f2a1c\n!re\n=.id=*2\n=name=user9d8e7f\n!done\n"
	r := newSentenceReader(strings.NewReader(input))

	reply, err := r.readReply()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reply.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(reply.Records))
	}
	if reply.Records[0]["name"] != "user4f2a1c" || reply.Records[1][".id"] != "*2" {
		t.Fatalf("records parsed wrong: %+v", reply.Records)
	}
	if reply.Trap != nil {
		t.Fatalf("unexpected trap: %+v", reply.Trap)
	}
}

func TestReadReply_TrapCaptured(t *testing.T) {
	input := "!trap\n=message=failure: already have user with this name\n!done\n"
	r := newSentenceReader(strings.NewReader(input))

	reply, err := r.readReply()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Trap == nil {
		t.Fatal("expected trap")
	}
	if got := reply.Trap.Attrs["message"]; got != "failure: already have user with this name" {
		t.Fatalf("wrong trap message: %q", got)
	}
}

func TestReadReply_PlainAttributeForm(t *testing.T) {
	// some firmware emits attributes without the leading =
	input := "!re\nname=hotspot-gw\n!done\n"
	r := newSentenceReader(strings.NewReader(input))

	reply, err := r.readReply()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Records[0]["name"] != "hotspot-gw" {
		t.Fatalf("plain form not parsed: %+v", reply.Records)
	}
}

func TestReadReply_UnknownMarker(t *testing.T) {
	r := newSentenceReader(strings.NewReader("!fatal\n!done\n"))

	_, err := r.readReply()
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestReadReply_MalformedAttribute(t *testing.T) {
	r := newSentenceReader(strings.NewReader("!re\n=noequalsign\n!done\n"))

	_, err := r.readReply()
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestReadReply_TruncatedStream(t *testing.T) {
	r := newSentenceReader(strings.NewReader("!re\n=.id=*1\n"))

	_, err := r.readReply()
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestWriteCommand_Wire(t *testing.T) {
	var b strings.Builder
	err := writeCommand(&b, "/ip/hotspot/user/add", []Word{
		{Key: "name", Value: "user4f2a1c"},
		{Key: "password", Value: "Ab3xY9qZ"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "/ip/hotspot/user/add\n=name=user4f2a1c\n=password=Ab3xY9qZ\n"
	if b.String() != want {
		t.Fatalf("wire mismatch:\n got %q\nwant %q", b.String(), want)
	}
}
