package model

import (
	"testing"
	"time"
)

func TestAggregateReactionsOrdering(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []Reaction{
		{MessageID: "m", UserID: "carol", Emoji: "👍", UpdatedAt: base.Add(3 * time.Second)},
		{MessageID: "m", UserID: "bob", Emoji: "🎉", UpdatedAt: base.Add(1 * time.Second)},
		{MessageID: "m", UserID: "alice", Emoji: "👍", UpdatedAt: base.Add(2 * time.Second)},
	}
	groups := AggregateReactions(rows)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	// U+1F389 < U+1F44D
	if groups[0].Emoji != "🎉" || groups[1].Emoji != "👍" {
		t.Fatalf("groups not sorted by emoji: %+v", groups)
	}
	for _, g := range groups {
		if g.Emoji == "👍" {
			if g.Count != 2 || g.By[0] != "alice" || g.By[1] != "carol" {
				t.Fatalf("👍 group = %+v", g)
			}
		}
	}
	if AggregateReactions(nil) == nil {
		t.Fatalf("empty aggregate should be a non-nil slice")
	}
}

func TestDirectKeyIsUnordered(t *testing.T) {
	if DirectKeyOf("b", "a") != DirectKeyOf("a", "b") {
		t.Fatalf("direct key depends on argument order")
	}
}

func TestPasswordHashing(t *testing.T) {
	u := &User{RawPassword: "pw12345678"}
	if err := u.HashRawPassword(); err != nil {
		t.Fatalf("HashRawPassword: %v", err)
	}
	if u.RawPassword != "" || u.Password == "" {
		t.Fatalf("raw password not cleared or hash missing")
	}
	if !u.CheckPassword("pw12345678") || u.CheckPassword("wrong") {
		t.Fatalf("CheckPassword mismatch")
	}
}
