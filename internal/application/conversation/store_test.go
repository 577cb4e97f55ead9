package conversation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ai-gateway-api/internal/domain/entity"
	"ai-gateway-api/internal/infrastructure/persistence/memory"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestStore() (*Store, *clock) {
	c := &clock{t: time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)}
	return NewStore(memory.NewKVStoreWithClock(c.now), 20, 24*time.Hour), c
}

func TestAppend_KeepsMostRecentTwenty(t *testing.T) {
	ctx := context.Background()
	s, c := newTestStore()

	for i := 0; i < 25; i++ {
		turn := entity.NewConversationTurn(entity.RoleUser, fmt.Sprintf("turn-%d", i), c.t)
		if err := s.Append(ctx, "conv-1", turn); err != nil {
			t.Fatal(err)
		}
	}

	turns, err := s.History(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 20 {
		t.Fatalf("len = %d, want 20", len(turns))
	}
	if turns[0].Content != "turn-5" || turns[19].Content != "turn-24" {
		t.Errorf("window = %s..%s", turns[0].Content, turns[19].Content)
	}
}

func TestHistory_EmptyAfterTTL(t *testing.T) {
	ctx := context.Background()
	s, c := newTestStore()

	_ = s.Append(ctx, "conv-1", entity.NewConversationTurn(entity.RoleUser, "hi", c.t))

	c.t = c.t.Add(23 * time.Hour)
	_ = s.Append(ctx, "conv-1", entity.NewConversationTurn(entity.RoleAssistant, "hello", c.t))

	// 距首次写入已超过 1 天，但距最后一次写入未超过
	c.t = c.t.Add(12 * time.Hour)
	turns, err := s.History(ctx, "conv-1")
	if err != nil || len(turns) != 2 {
		t.Fatalf("turns = %v, err = %v", turns, err)
	}

	c.t = c.t.Add(12 * time.Hour)
	turns, err = s.History(ctx, "conv-1")
	if err != nil {
		t.Fatalf("expired history should not error: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("turns after ttl = %v", turns)
	}
}

func TestHistory_UnknownConversation(t *testing.T) {
	s, _ := newTestStore()
	turns, err := s.History(context.Background(), "nope")
	if err != nil || turns == nil || len(turns) != 0 {
		t.Fatalf("turns = %v, err = %v", turns, err)
	}
}

func TestAppend_PreservesOrderWithinCall(t *testing.T) {
	ctx := context.Background()
	s, c := newTestStore()

	err := s.Append(ctx, "conv-1",
		entity.NewConversationTurn(entity.RoleUser, "q", c.t),
		entity.NewConversationTurn(entity.RoleAssistant, "a", c.t),
	)
	if err != nil {
		t.Fatal(err)
	}
	turns, _ := s.History(ctx, "conv-1")
	if len(turns) != 2 || turns[0].Role != entity.RoleUser || turns[1].Role != entity.RoleAssistant {
		t.Fatalf("turns = %+v", turns)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s, c := newTestStore()
	_ = s.Append(ctx, "conv-1", entity.NewConversationTurn(entity.RoleUser, "x", c.t))

	if err := s.Clear(ctx, "conv-1"); err != nil {
		t.Fatal(err)
	}
	turns, _ := s.History(ctx, "conv-1")
	if len(turns) != 0 {
		t.Fatalf("turns after clear = %v", turns)
	}
}

func TestEmptyIDRejected(t *testing.T) {
	s, _ := newTestStore()
	if err := s.Append(context.Background(), " ", entity.ConversationTurn{}); err == nil {
		t.Error("Append with empty id should fail")
	}
	if _, err := s.History(context.Background(), ""); err == nil {
		t.Error("History with empty id should fail")
	}
}
