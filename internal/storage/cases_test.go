package storage

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestCaseNumbersAreSequentialPerGuild(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	guild, err := store.GetOrCreateGuild(ctx, "100")
	if err != nil {
		t.Fatalf("create guild: %v", err)
	}
	next, err := store.NextCaseNumber(ctx, guild.EntryID)
	if err != nil {
		t.Fatalf("next case number: %v", err)
	}
	if next != 1 {
		t.Fatalf("expected 1, got %d", next)
	}

	first, err := store.CreateCase(ctx, NewCase{GuildEntryID: guild.EntryID, Moderator: "m", Target: "t", Reason: "spam", Type: CaseWarn})
	if err != nil {
		t.Fatalf("create case: %v", err)
	}
	if first.ID != 1 {
		t.Fatalf("expected case 1, got %d", first.ID)
	}
	next, _ = store.NextCaseNumber(ctx, guild.EntryID)
	if next != 2 {
		t.Fatalf("expected 2, got %d", next)
	}

	for i := 2; i <= 5; i++ {
		c, err := store.CreateCase(ctx, NewCase{GuildEntryID: guild.EntryID, Moderator: "m", Target: "t", Reason: "spam", Type: CaseKick})
		if err != nil {
			t.Fatalf("create case %d: %v", i, err)
		}
		if c.ID != i {
			t.Fatalf("expected case %d, got %d", i, c.ID)
		}
	}

	other, _ := store.GetOrCreateGuild(ctx, "200")
	c, err := store.CreateCase(ctx, NewCase{GuildEntryID: other.EntryID, Moderator: "m", Target: "t", Reason: "spam", Type: CaseWarn})
	if err != nil {
		t.Fatalf("create case in other guild: %v", err)
	}
	if c.ID != 1 {
		t.Fatalf("expected numbering to be per guild, got %d", c.ID)
	}
}

func TestConcurrentAllocationHasNoDuplicates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	guild, _ := store.GetOrCreateGuild(ctx, "100")

	const workers = 12
	numbers := make([]int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := store.CreatePendingCase(ctx, NewCase{GuildEntryID: guild.EntryID, Moderator: "m", Target: "t", Reason: "r", Type: CaseBan})
			if err != nil {
				t.Errorf("create case: %v", err)
				return
			}
			numbers[i] = c.ID
		}(i)
	}
	wg.Wait()

	sort.Ints(numbers)
	for i, n := range numbers {
		if n != i+1 {
			t.Fatalf("expected numbers 1..%d, got %v", workers, numbers)
		}
	}
}

func TestExpiryOnlyForTemporaryTypes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	guild, _ := store.GetOrCreateGuild(ctx, "100")
	expires := time.Now().Add(time.Hour)

	if _, err := store.CreateCase(ctx, NewCase{GuildEntryID: guild.EntryID, Moderator: "m", Target: "t", Reason: "r", Type: CaseWarn, ExpireAt: &expires}); err != ErrInvalidExpiry {
		t.Fatalf("expected ErrInvalidExpiry for warn with expiry, got %v", err)
	}
	if _, err := store.CreateCase(ctx, NewCase{GuildEntryID: guild.EntryID, Moderator: "m", Target: "t", Reason: "r", Type: CaseTempMute}); err != ErrInvalidExpiry {
		t.Fatalf("expected ErrInvalidExpiry for temp-mute without expiry, got %v", err)
	}

	c, err := store.CreateCase(ctx, NewCase{GuildEntryID: guild.EntryID, Moderator: "m", Target: "t", Reason: "r", Type: CaseTempMute, ExpireAt: &expires})
	if err != nil {
		t.Fatalf("create temp mute: %v", err)
	}
	got, ok := c.Expires()
	if !ok || got.Unix() != expires.Unix() {
		t.Fatalf("unexpected expiry %v %v", got, ok)
	}
}

func TestPendingCasesAreHiddenUntilCommitted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	guild, _ := store.GetOrCreateGuild(ctx, "100")

	c, err := store.CreatePendingCase(ctx, NewCase{GuildEntryID: guild.EntryID, Moderator: "m", Target: "t", Reason: "r", Type: CaseKick})
	if err != nil {
		t.Fatalf("create pending case: %v", err)
	}
	if _, err := store.GetCase(ctx, guild.EntryID, c.ID); err != ErrNotFound {
		t.Fatalf("expected pending case to be hidden, got %v", err)
	}

	stale, err := store.ListStalePendingCases(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(stale) != 1 || stale[0].EntryID != c.EntryID {
		t.Fatalf("expected the pending case to be reported, got %+v", stale)
	}

	if err := store.CommitCase(ctx, c.EntryID); err != nil {
		t.Fatalf("commit case: %v", err)
	}
	got, err := store.GetCase(ctx, guild.EntryID, c.ID)
	if err != nil {
		t.Fatalf("get committed case: %v", err)
	}
	if got.Status != CaseStatusCommitted {
		t.Fatalf("expected committed, got %s", got.Status)
	}
	if byEntry, err := store.GetCaseByEntryID(ctx, guild.EntryID, c.EntryID); err != nil || byEntry.ID != c.ID {
		t.Fatalf("lookup by entry id: %+v %v", byEntry, err)
	}
}

func TestDeleteLatestCaseRewindsCounter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	guild, _ := store.GetOrCreateGuild(ctx, "100")

	first, _ := store.CreateCase(ctx, NewCase{GuildEntryID: guild.EntryID, Moderator: "m", Target: "t", Reason: "r", Type: CaseWarn})
	second, _ := store.CreatePendingCase(ctx, NewCase{GuildEntryID: guild.EntryID, Moderator: "m", Target: "t", Reason: "r", Type: CaseBan})
	if err := store.DeleteCase(ctx, second.EntryID); err != nil {
		t.Fatalf("delete case: %v", err)
	}

	third, err := store.CreateCase(ctx, NewCase{GuildEntryID: guild.EntryID, Moderator: "m", Target: "t", Reason: "r", Type: CaseWarn})
	if err != nil {
		t.Fatalf("create case: %v", err)
	}
	if third.ID != first.ID+1 {
		t.Fatalf("expected number %d to be reused, got %d", first.ID+1, third.ID)
	}
	if err := store.DeleteCase(ctx, second.EntryID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestListCasesNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	guild, _ := store.GetOrCreateGuild(ctx, "100")

	for _, target := range []string{"a", "b", "a"} {
		if _, err := store.CreateCase(ctx, NewCase{GuildEntryID: guild.EntryID, Moderator: "m", Target: target, Reason: "r", Type: CaseWarn}); err != nil {
			t.Fatalf("create case: %v", err)
		}
	}

	all, err := store.ListCases(ctx, guild.EntryID, "")
	if err != nil {
		t.Fatalf("list cases: %v", err)
	}
	if len(all) != 3 || all[0].ID != 3 || all[2].ID != 1 {
		t.Fatalf("unexpected order %+v", all)
	}

	forA, err := store.ListCases(ctx, guild.EntryID, "a")
	if err != nil {
		t.Fatalf("list cases for target: %v", err)
	}
	if len(forA) != 2 || forA[0].ID != 3 || forA[1].ID != 1 {
		t.Fatalf("unexpected filtered list %+v", forA)
	}

	counts, err := store.CountCasesByType(ctx)
	if err != nil {
		t.Fatalf("count cases: %v", err)
	}
	if counts[CaseWarn] != 3 {
		t.Fatalf("expected 3 warns, got %d", counts[CaseWarn])
	}
}

func TestUpdateCaseReasonValidates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	guild, _ := store.GetOrCreateGuild(ctx, "100")
	c, _ := store.CreateCase(ctx, NewCase{GuildEntryID: guild.EntryID, Moderator: "m", Target: "t", Reason: "r", Type: CaseWarn})

	if err := store.UpdateCaseReason(ctx, c.EntryID, ""); err != ErrInvalidReason {
		t.Fatalf("expected ErrInvalidReason, got %v", err)
	}
	if err := store.UpdateCaseReason(ctx, c.EntryID, "new reason"); err != nil {
		t.Fatalf("update reason: %v", err)
	}
	got, _ := store.GetCase(ctx, guild.EntryID, c.ID)
	if got.Reason != "new reason" {
		t.Fatalf("expected updated reason, got %q", got.Reason)
	}
}

func TestCaseTypeTitle(t *testing.T) {
	if got := CaseTempMute.Title(); got != "Temp-Mute" {
		t.Fatalf("expected Temp-Mute, got %q", got)
	}
	if got := CaseType(42).String(); got != "unknown" {
		t.Fatalf("expected unknown, got %q", got)
	}
}

func TestCommitCaseAsChangesType(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	guild, _ := store.GetOrCreateGuild(ctx, "100")

	c, err := store.CreatePendingCase(ctx, NewCase{GuildEntryID: guild.EntryID, Moderator: "m", Target: "t", Reason: "r", Type: CaseSoftBan})
	if err != nil {
		t.Fatalf("create pending case: %v", err)
	}
	if err := store.CommitCaseAs(ctx, c.EntryID, CaseTempBan); err != ErrInvalidExpiry {
		t.Fatalf("expected temporary type to be rejected, got %v", err)
	}
	if err := store.CommitCaseAs(ctx, c.EntryID, CaseBan); err != nil {
		t.Fatalf("commit case as ban: %v", err)
	}

	got, err := store.GetCase(ctx, guild.EntryID, c.ID)
	if err != nil {
		t.Fatalf("get case: %v", err)
	}
	if got.Type != CaseBan || got.Status != CaseStatusCommitted {
		t.Fatalf("expected committed ban, got %s %s", got.Type, got.Status)
	}
	if err := store.CommitCaseAs(ctx, "missing", CaseBan); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
