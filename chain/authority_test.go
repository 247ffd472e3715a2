package chain

import "testing"

// Authority rotation: for slot width w and authorities
// [a_0, a_1], author_at(0) == a_0, author_at(w) == a_1,
// author_at(2w) == a_0.
func TestAuthorityRotation(t *testing.T) {
	a0 := Address("0xa0")
	a1 := Address("0xa1")
	sched := NewAuthorityScheduler([]Address{a0, a1})
	w := sched.slotWidth

	if got := sched.AuthorAt(0); got != a0 {
		t.Fatalf("author_at(0) = %s, want %s", got, a0)
	}
	if got := sched.AuthorAt(w); got != a1 {
		t.Fatalf("author_at(w) = %s, want %s", got, a1)
	}
	if got := sched.AuthorAt(2 * w); got != a0 {
		t.Fatalf("author_at(2w) = %s, want %s", got, a0)
	}
}

func TestVerifyBlockAuthorUsesBlockTimestamp(t *testing.T) {
	a0 := Address("0xa0")
	a1 := Address("0xa1")
	sched := NewAuthorityScheduler([]Address{a0, a1})
	w := sched.slotWidth

	if !sched.VerifyBlockAuthor(a0, 0) {
		t.Fatalf("expected a0 to be entitled at slot 0")
	}
	if sched.VerifyBlockAuthor(a1, 0) {
		t.Fatalf("expected a1 to not be entitled at slot 0")
	}
	if !sched.VerifyBlockAuthor(a1, w) {
		t.Fatalf("expected a1 to be entitled at slot 1")
	}
}
