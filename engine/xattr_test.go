package engine

import "testing"

func TestXattr_CreateFlagFailsIfAlreadySet(t *testing.T) {
	e := openTestEngine(t)
	if _, err := e.Create("/f", 0o644); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := e.SetXattr("/f", "user.k", []byte("1"), XattrCreate); err != nil {
		t.Fatalf("first SetXattr with XattrCreate: %v", err)
	}
	if err := e.SetXattr("/f", "user.k", []byte("2"), XattrCreate); err != ErrExists {
		t.Fatalf("second SetXattr with XattrCreate = %v, want ErrExists", err)
	}
}

func TestXattr_ReplaceFlagFailsIfAbsent(t *testing.T) {
	e := openTestEngine(t)
	if _, err := e.Create("/f", 0o644); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := e.SetXattr("/f", "user.k", []byte("1"), XattrReplace); err != ErrNoData {
		t.Fatalf("SetXattr with XattrReplace on absent name = %v, want ErrNoData", err)
	}
	if err := e.SetXattr("/f", "user.k", []byte("1"), 0); err != nil {
		t.Fatalf("plain SetXattr: %v", err)
	}
	if err := e.SetXattr("/f", "user.k", []byte("2"), XattrReplace); err != nil {
		t.Fatalf("SetXattr with XattrReplace once present: %v", err)
	}
}

func TestXattr_GetXattr_ShortBufferIsERANGE(t *testing.T) {
	e := openTestEngine(t)
	if _, err := e.Create("/f", 0o644); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := e.SetXattr("/f", "user.k", []byte("abcdef"), 0); err != nil {
		t.Fatalf("SetXattr: %v", err)
	}
	buf := make([]byte, 2)
	if _, err := e.GetXattr("/f", "user.k", buf); err != ErrRange {
		t.Fatalf("GetXattr into short buffer = %v, want ErrRange", err)
	}
}

func TestXattr_ListXattr_PreservesInsertionOrder(t *testing.T) {
	e := openTestEngine(t)
	if _, err := e.Create("/f", 0o644); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := e.SetXattr("/f", "user.b", []byte("x"), 0); err != nil {
		t.Fatalf("SetXattr b: %v", err)
	}
	if err := e.SetXattr("/f", "user.a", []byte("y"), 0); err != nil {
		t.Fatalf("SetXattr a: %v", err)
	}
	size, err := e.ListXattr("/f", nil)
	if err != nil {
		t.Fatalf("ListXattr size: %v", err)
	}
	buf := make([]byte, size)
	if _, err := e.ListXattr("/f", buf); err != nil {
		t.Fatalf("ListXattr: %v", err)
	}
	want := "user.b\x00user.a\x00"
	if string(buf) != want {
		t.Fatalf("ListXattr = %q, want %q", buf, want)
	}
}

func TestXattr_RemoveXattr_AbsentNameIsENODATA(t *testing.T) {
	e := openTestEngine(t)
	if _, err := e.Create("/f", 0o644); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := e.RemoveXattr("/f", "user.missing"); err != ErrNoData {
		t.Fatalf("RemoveXattr on absent name = %v, want ErrNoData", err)
	}
}
