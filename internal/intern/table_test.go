package intern

import "testing"

func TestTable_InternIsStable(t *testing.T) {
	tbl := New("usernames")

	a := tbl.Intern("alice")
	b := tbl.Intern("bob")
	again := tbl.Intern("alice")

	if a != again {
		t.Errorf("Intern(alice) = %d then %d, want stable id", a, again)
	}
	if a == b {
		t.Errorf("distinct strings got same id %d", a)
	}
	if tbl.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tbl.Len())
	}
}

func TestTable_Reverse(t *testing.T) {
	tbl := New("browsers")
	id := tbl.Intern("Chrome")

	name, err := tbl.Name(id)
	if err != nil {
		t.Fatalf("Name(%d) error: %v", id, err)
	}
	if name != "Chrome" {
		t.Errorf("Name(%d) = %q, want Chrome", id, name)
	}

	if _, err := tbl.Name(id + 1); err == nil {
		t.Error("Name() of unknown id should fail")
	}
}

func TestTable_LookupDoesNotInsert(t *testing.T) {
	tbl := New("os")

	if _, ok := tbl.Lookup("Linux"); ok {
		t.Error("Lookup on empty table should miss")
	}
	if tbl.Len() != 0 {
		t.Errorf("Lookup inserted: Len() = %d", tbl.Len())
	}

	id := tbl.Intern("Linux")
	got, ok := tbl.Lookup("Linux")
	if !ok || got != id {
		t.Errorf("Lookup(Linux) = %d, %v; want %d, true", got, ok, id)
	}
}
