package history

import (
	"testing"

	"pagechat/internal/chat"
)

func TestSortByTimestamp(t *testing.T) {
	sessions := []chat.Session{
		{ID: "a", Timestamp: 2},
		{ID: "b", Timestamp: 3},
		{ID: "c", Timestamp: 1},
	}

	desc := Sort(sessions, SortByTimestamp, false)
	if desc[0].ID != "b" || desc[2].ID != "c" {
		t.Fatalf("descending order wrong: %v %v %v", desc[0].ID, desc[1].ID, desc[2].ID)
	}

	asc := Sort(sessions, SortByTimestamp, true)
	if asc[0].ID != "c" || asc[2].ID != "b" {
		t.Fatalf("ascending order wrong: %v %v %v", asc[0].ID, asc[1].ID, asc[2].ID)
	}

	// input untouched
	if sessions[0].ID != "a" {
		t.Fatal("Sort mutated its input")
	}
}

func TestSortByTitleCollation(t *testing.T) {
	sessions := []chat.Session{
		{ID: "1", Title: "banana"},
		{ID: "2", Title: "Apple"},
		{ID: "3", Title: "cherry"},
	}
	asc := Sort(sessions, SortByTitle, true)
	// collation is case-insensitive at the primary level, so Apple < banana
	if asc[0].Title != "Apple" || asc[2].Title != "cherry" {
		t.Fatalf("title order wrong: %q %q %q", asc[0].Title, asc[1].Title, asc[2].Title)
	}
}
