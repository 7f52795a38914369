package access

import (
	"testing"

	"github.com/cuemby/sysrepo-engine/internal/datastore"
)

func TestIteratorWalksItemsThenDone(t *testing.T) {
	r := NewIteratorRegistry()
	items := []datastore.Item{
		{Path: "/m:a", Value: "1"},
		{Path: "/m:b", Value: "2"},
	}

	tok, err := r.Open(1, items)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	got, done, err := r.Next(tok)
	if err != nil || done || got != items[0] {
		t.Fatalf("Next() #1 = %+v, done=%v, err=%v; want %+v, false, nil", got, done, err, items[0])
	}

	got, done, err = r.Next(tok)
	if err != nil || done || got != items[1] {
		t.Fatalf("Next() #2 = %+v, done=%v, err=%v; want %+v, false, nil", got, done, err, items[1])
	}

	_, done, err = r.Next(tok)
	if err != nil || !done {
		t.Fatalf("Next() #3 = done=%v, err=%v; want done=true, err=nil", done, err)
	}

	if _, _, err := r.Next(tok); err != ErrIteratorDead {
		t.Errorf("Next() after exhaustion = %v, want ErrIteratorDead", err)
	}
}

func TestNextUnknownToken(t *testing.T) {
	r := NewIteratorRegistry()
	if _, _, err := r.Next("no-such-token"); err != ErrUnknownIterator {
		t.Errorf("Next() = %v, want ErrUnknownIterator", err)
	}
}

func TestKillMarksIteratorDead(t *testing.T) {
	r := NewIteratorRegistry()
	tok, err := r.Open(1, []datastore.Item{{Path: "/m:a", Value: "1"}})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := r.Kill(tok); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}
	if _, _, err := r.Next(tok); err != ErrUnknownIterator {
		t.Errorf("Next() after Kill() = %v, want ErrUnknownIterator (token forgotten)", err)
	}
}

func TestCloseSessionForgetsItsIterators(t *testing.T) {
	r := NewIteratorRegistry()
	tokA, _ := r.Open(1, []datastore.Item{{Path: "/m:a", Value: "1"}})
	tokB, _ := r.Open(2, []datastore.Item{{Path: "/m:b", Value: "2"}})

	r.CloseSession(1)

	if _, _, err := r.Next(tokA); err != ErrUnknownIterator {
		t.Errorf("Next(tokA) after CloseSession(1) = %v, want ErrUnknownIterator", err)
	}
	if _, _, err := r.Next(tokB); err != nil {
		t.Errorf("Next(tokB) after CloseSession(1) = %v, want nil (session 2 untouched)", err)
	}
}
