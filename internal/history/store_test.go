package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"pagechat/internal/chat"
	"pagechat/internal/kv"
	"pagechat/internal/logging"
)

func newTestStore(t *testing.T) (*Store, *kv.MemStore) {
	t.Helper()
	mem := kv.NewMemStore()
	return NewStore(mem, logging.Nop()), mem
}

func userSession(text string) chat.Session {
	return chat.Session{
		Messages: []chat.Message{{Role: chat.RoleUser, Content: text}},
	}
}

func TestAddAssignsIDAndTitle(t *testing.T) {
	store, mem := newTestStore(t)

	id := store.Add(userSession("hello world"))
	if !strings.HasPrefix(id, "chat_") {
		t.Fatalf("unexpected id %q", id)
	}

	got, ok := store.Get(id)
	if !ok {
		t.Fatal("session not found after Add")
	}
	if got.Title != "hello world" {
		t.Fatalf("title = %q", got.Title)
	}
	if got.Timestamp <= 0 {
		t.Fatal("timestamp not set")
	}

	// persisted as one record
	if _, err := mem.Get(StorageKey); err != nil {
		t.Fatalf("history record not written: %v", err)
	}
}

func TestAddEvictsOldestBeyondLimit(t *testing.T) {
	store, _ := newTestStore(t)

	first := store.Add(userSession("msg 0"))
	for i := 1; i <= MaxItems; i++ {
		store.Add(userSession(fmt.Sprintf("msg %d", i)))
	}

	all := store.All()
	if len(all) != MaxItems {
		t.Fatalf("len = %d, want %d", len(all), MaxItems)
	}
	if _, ok := store.Get(first); ok {
		t.Fatal("oldest session should have been evicted")
	}
	if all[0].Messages[0].Content != fmt.Sprintf("msg %d", MaxItems) {
		t.Fatalf("newest not at head: %q", all[0].Messages[0].Content)
	}
}

func TestUpdateMergesAndMovesToHead(t *testing.T) {
	store, _ := newTestStore(t)

	id1 := store.Add(userSession("first"))
	store.Add(userSession("second"))

	msgs := []chat.Message{
		{Role: chat.RoleUser, Content: "first"},
		{Role: chat.RoleAssistant, Content: "reply"},
	}
	if !store.Update(id1, SessionPatch{Messages: msgs}) {
		t.Fatal("Update returned false")
	}

	all := store.All()
	if all[0].ID != id1 {
		t.Fatalf("updated session not at head, got %s", all[0].ID)
	}
	if len(all[0].Messages) != 2 {
		t.Fatalf("messages = %d", len(all[0].Messages))
	}
	// title regenerated from first user message
	if all[0].Title != "first" {
		t.Fatalf("title = %q", all[0].Title)
	}
}

func TestUpdateExplicitTitleSuppressesRegeneration(t *testing.T) {
	store, _ := newTestStore(t)
	id := store.Add(userSession("original"))

	title := "pinned title"
	msgs := []chat.Message{{Role: chat.RoleUser, Content: "changed"}}
	store.Update(id, SessionPatch{Title: &title, Messages: msgs})

	got, _ := store.Get(id)
	if got.Title != "pinned title" {
		t.Fatalf("title = %q", got.Title)
	}
}

func TestUpdateClearPage(t *testing.T) {
	store, _ := newTestStore(t)
	s := userSession("with page")
	s.PageInfo = &chat.PageContent{Title: "Page", URL: "https://x"}
	id := store.Add(s)

	store.Update(id, SessionPatch{ClearPage: true})
	got, _ := store.Get(id)
	if got.PageInfo != nil {
		t.Fatal("page info not cleared")
	}
}

func TestUpdateUnknownID(t *testing.T) {
	store, _ := newTestStore(t)
	if store.Update("chat_missing", SessionPatch{}) {
		t.Fatal("Update of unknown id should return false")
	}
}

func TestDeleteAndClear(t *testing.T) {
	store, mem := newTestStore(t)
	id := store.Add(userSession("bye"))

	if !store.Delete(id) {
		t.Fatal("Delete returned false")
	}
	if store.Delete(id) {
		t.Fatal("second Delete should return false")
	}

	store.Add(userSession("again"))
	store.Clear()
	if len(store.All()) != 0 {
		t.Fatal("Clear left sessions behind")
	}
	if _, err := mem.Get(StorageKey); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("record should be deleted, got %v", err)
	}
}

func TestSearch(t *testing.T) {
	store, _ := newTestStore(t)

	s1 := userSession("tell me about quantum computing")
	store.Add(s1)
	s2 := userSession("weather tomorrow")
	s2.PageInfo = &chat.PageContent{Title: "Quantum Leap Review"}
	store.Add(s2)
	store.Add(userSession("unrelated"))

	if got := store.Search("QUANTUM"); len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got := store.Search("zzz-none"); len(got) != 0 {
		t.Fatalf("len = %d, want 0", len(got))
	}
	// blank query returns everything
	if got := store.Search("  "); len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	store.Add(userSession("keep me"))

	data, err := store.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	fresh, _ := newTestStore(t)
	if err := fresh.Import(data); err != nil {
		t.Fatalf("Import: %v", err)
	}
	all := fresh.All()
	if len(all) != 1 || all[0].Messages[0].Content != "keep me" {
		t.Fatalf("round trip lost data: %+v", all)
	}
}

func TestImportRejectsInvalidElements(t *testing.T) {
	store, _ := newTestStore(t)
	existing := store.Add(userSession("survivor"))

	bad := []chat.Session{
		{ID: "chat_ok", Title: "fine", Timestamp: 1},
		{ID: "", Title: "no id", Timestamp: 1},
	}
	data, _ := json.Marshal(bad)

	err := store.Import(data)
	var ie *ImportError
	if !errors.As(err, &ie) {
		t.Fatalf("want ImportError, got %v", err)
	}
	if ie.Index != 1 || ie.Field != "id" {
		t.Fatalf("got index=%d field=%q", ie.Index, ie.Field)
	}
	// abort leaves the store untouched
	if _, ok := store.Get(existing); !ok {
		t.Fatal("failed import must not modify the store")
	}
}

func TestImportNormalizesRoles(t *testing.T) {
	store, _ := newTestStore(t)

	doc := `[{"id": "chat_1", "title": "t", "timestamp": 1,
	  "messages": [{"role": " User ", "content": "hi"}, {"role": "ASSISTANT", "content": "yo"}]}]`
	if err := store.Import([]byte(doc)); err != nil {
		t.Fatalf("Import: %v", err)
	}
	got, _ := store.Get("chat_1")
	if got.Messages[0].Role != chat.RoleUser || got.Messages[1].Role != chat.RoleAssistant {
		t.Fatalf("roles = %v %v", got.Messages[0].Role, got.Messages[1].Role)
	}
}

func TestImportTruncatesToLimit(t *testing.T) {
	store, _ := newTestStore(t)

	var many []chat.Session
	for i := 0; i < MaxItems+20; i++ {
		many = append(many, chat.Session{
			ID:        fmt.Sprintf("chat_%d", i),
			Title:     "t",
			Timestamp: int64(i + 1),
		})
	}
	data, _ := json.Marshal(many)
	if err := store.Import(data); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if got := len(store.All()); got != MaxItems {
		t.Fatalf("len = %d, want %d", got, MaxItems)
	}
}

func TestQuotaTrimRetriesOnce(t *testing.T) {
	mem := kv.NewMemStore()
	store := NewStore(mem, logging.Nop())
	for i := 0; i < MaxItems; i++ {
		store.Add(userSession(fmt.Sprintf("msg %d", i)))
	}

	sets := 0
	mem.SetHook = func(key string, value []byte) error {
		sets++
		if sets == 1 {
			return kv.ErrQuotaExceeded
		}
		return nil
	}
	store.Add(userSession("overflow"))

	if sets != 2 {
		t.Fatalf("sets = %d, want exactly one retry", sets)
	}
	// 100 entries plus the new one capped to 100, then halved
	if got := len(store.All()); got != MaxItems/2 {
		t.Fatalf("len = %d, want %d", got, MaxItems/2)
	}
	// newest survived the trim
	if store.All()[0].Messages[0].Content != "overflow" {
		t.Fatal("newest session dropped by quota trim")
	}
}

func TestQuotaTrimFailedRetryKeepsTrimmedState(t *testing.T) {
	mem := kv.NewMemStore()
	store := NewStore(mem, logging.Nop())
	for i := 0; i < 10; i++ {
		store.Add(userSession(fmt.Sprintf("msg %d", i)))
	}

	sets := 0
	mem.SetHook = func(key string, value []byte) error {
		sets++
		return kv.ErrQuotaExceeded
	}
	store.Add(userSession("overflow"))

	if sets != 2 {
		t.Fatalf("sets = %d, want exactly one retry", sets)
	}
	// in-memory stays trimmed even though the retry failed
	if got := len(store.All()); got != 6 {
		t.Fatalf("len = %d, want 6", got)
	}
}

func TestPersistedOrderSurvivesReload(t *testing.T) {
	mem := kv.NewMemStore()
	store := NewStore(mem, logging.Nop())
	store.Add(userSession("one"))
	id2 := store.Add(userSession("two"))

	reloaded := NewStore(mem, logging.Nop())
	all := reloaded.All()
	if len(all) != 2 || all[0].ID != id2 {
		t.Fatalf("reload order wrong: %+v", all)
	}
}
