package transport

import "testing"

func TestNew_SelectsImplementationByMode(t *testing.T) {
	if _, ok := New(ModeHTTP).(*HTTPTransport); !ok {
		t.Fatalf("expected ModeHTTP to build an *HTTPTransport")
	}
	if _, ok := New(ModeWebsocket).(*WebsocketTransport); !ok {
		t.Fatalf("expected ModeWebsocket to build a *WebsocketTransport")
	}
	if _, ok := New(ModeSocket).(*SocketTransport); !ok {
		t.Fatalf("expected ModeSocket to build a *SocketTransport")
	}
	if _, ok := New(ModeAuto).(*SocketTransport); !ok {
		t.Fatalf("expected ModeAuto to default to *SocketTransport")
	}
	if _, ok := New(Mode("bogus")).(*SocketTransport); !ok {
		t.Fatalf("expected an unknown mode to default to *SocketTransport")
	}
}

func TestSplitNonEmpty(t *testing.T) {
	got := splitNonEmpty("a=1,b=2,,c=3", ',')
	want := []string{"a=1", "b=2", "c=3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestCut(t *testing.T) {
	k, v, ok := cut("runner-1=127.0.0.1:9000", '=')
	if !ok || k != "runner-1" || v != "127.0.0.1:9000" {
		t.Fatalf("cut returned (%q, %q, %v)", k, v, ok)
	}

	_, _, ok = cut("no-separator", '=')
	if ok {
		t.Fatalf("expected ok=false when the separator is absent")
	}
}

func TestParseAddressBook(t *testing.T) {
	book := ParseAddressBook("runner-a=10.0.0.1:9000,runner-b=10.0.0.2:9000")

	addr, ok := book.AddressFor("runner-a")
	if !ok || addr != "10.0.0.1:9000" {
		t.Fatalf("AddressFor(runner-a) = (%q, %v)", addr, ok)
	}

	if _, ok := book.AddressFor("runner-z"); ok {
		t.Fatalf("expected unknown runner id to report not-ok")
	}
}

func TestParseAddressBook_Empty(t *testing.T) {
	book := ParseAddressBook("")
	if len(book) != 0 {
		t.Fatalf("expected an empty address book for an empty string, got %v", book)
	}
}
