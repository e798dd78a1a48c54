package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lexdrill/lexdrill/internal/srs"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testWord(id, headword string, due time.Time) Word {
	return Word{
		ID:       id,
		Headword: headword,
		Lexical:  `{}`,
		Schedule: srs.ScheduleState{
			IntervalDays: 1.0,
			EaseFactor:   2.5,
			NextReviewAt: due,
		},
		CreatedAt: due,
	}
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies that the migration creates the expected indexes.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_words_headword", "idx_words_next_review", "idx_words_created", "idx_words_learned_due", "idx_lookups_created"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

// TestLearnedColumnDetected verifies that Open's schema introspection sees
// the learned column added by migration 0002.
func TestLearnedColumnDetected(t *testing.T) {
	s := openTestStore(t)
	if !s.hasLearned {
		t.Error("hasLearned = false after migrations, want true")
	}
}

func TestCreateAndGetWord(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	want := Word{
		ID:       "w-001",
		Headword: "你好",
		Lexical:  `{"pinyin":"nǐ hǎo"}`,
		Schedule: srs.ScheduleState{
			IntervalDays: 4.5,
			EaseFactor:   2.3,
			NextReviewAt: now.Add(48 * time.Hour),
		},
		CreatedAt: now,
	}

	if err := s.CreateWord(want); err != nil {
		t.Fatalf("CreateWord: %v", err)
	}

	got, err := s.GetWord("w-001")
	if err != nil {
		t.Fatalf("GetWord: %v", err)
	}

	if got.Headword != want.Headword {
		t.Errorf("Headword = %q, want %q", got.Headword, want.Headword)
	}
	if got.Lexical != want.Lexical {
		t.Errorf("Lexical = %q, want %q", got.Lexical, want.Lexical)
	}
	if got.Schedule.IntervalDays != want.Schedule.IntervalDays {
		t.Errorf("IntervalDays = %v, want %v", got.Schedule.IntervalDays, want.Schedule.IntervalDays)
	}
	if got.Schedule.EaseFactor != want.Schedule.EaseFactor {
		t.Errorf("EaseFactor = %v, want %v", got.Schedule.EaseFactor, want.Schedule.EaseFactor)
	}
	if !got.Schedule.NextReviewAt.Equal(want.Schedule.NextReviewAt) {
		t.Errorf("NextReviewAt = %v, want %v", got.Schedule.NextReviewAt, want.Schedule.NextReviewAt)
	}
	if got.Schedule.Learned {
		t.Error("Learned = true, want false")
	}
}

func TestGetWordNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetWord("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetWord(nope) = %v, want ErrNotFound", err)
	}
}

func TestGetWordByHeadwordNewestWins(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	older := testWord("w-old", "熊猫", now.Add(-time.Hour))
	newer := testWord("w-new", "熊猫", now)
	if err := s.CreateWord(older); err != nil {
		t.Fatalf("CreateWord: %v", err)
	}
	if err := s.CreateWord(newer); err != nil {
		t.Fatalf("CreateWord: %v", err)
	}

	got, err := s.GetWordByHeadword("熊猫")
	if err != nil {
		t.Fatalf("GetWordByHeadword: %v", err)
	}
	if got.ID != "w-new" {
		t.Errorf("got %q, want the newer entry w-new", got.ID)
	}
}

func TestDeleteWord(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	if err := s.CreateWord(testWord("w-del", "猫", now)); err != nil {
		t.Fatalf("CreateWord: %v", err)
	}
	if err := s.DeleteWord("w-del"); err != nil {
		t.Fatalf("DeleteWord: %v", err)
	}
	if _, err := s.GetWord("w-del"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetWord after delete = %v, want ErrNotFound", err)
	}
	if err := s.DeleteWord("w-del"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteWord = %v, want ErrNotFound", err)
	}
}

func TestUpdateSchedule(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	if err := s.CreateWord(testWord("w-up", "狗", now)); err != nil {
		t.Fatalf("CreateWord: %v", err)
	}

	next := srs.ScheduleState{
		IntervalDays: 10.0,
		EaseFactor:   2.6,
		NextReviewAt: now.Add(10 * 24 * time.Hour),
	}
	if err := s.UpdateSchedule("w-up", next); err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}

	got, err := s.GetWord("w-up")
	if err != nil {
		t.Fatalf("GetWord: %v", err)
	}
	if got.Schedule.IntervalDays != 10.0 || got.Schedule.EaseFactor != 2.6 {
		t.Errorf("schedule not updated: %+v", got.Schedule)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt changed by UpdateSchedule: %v", got.CreatedAt)
	}

	if err := s.UpdateSchedule("absent", next); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateSchedule(absent) = %v, want ErrNotFound", err)
	}
}

// TestTouchWordLeavesSchedule verifies that move-to-end only reorders list
// views and never reschedules.
func TestTouchWordLeavesSchedule(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	w := testWord("w-touch", "鸟", now.Add(-time.Hour))
	if err := s.CreateWord(w); err != nil {
		t.Fatalf("CreateWord: %v", err)
	}

	if err := s.TouchWord("w-touch", now); err != nil {
		t.Fatalf("TouchWord: %v", err)
	}

	got, err := s.GetWord("w-touch")
	if err != nil {
		t.Fatalf("GetWord: %v", err)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}
	if !got.Schedule.NextReviewAt.Equal(w.Schedule.NextReviewAt) {
		t.Errorf("NextReviewAt changed by TouchWord: %v", got.Schedule.NextReviewAt)
	}
	if got.Schedule.IntervalDays != w.Schedule.IntervalDays {
		t.Errorf("IntervalDays changed by TouchWord: %v", got.Schedule.IntervalDays)
	}
}

func TestFindDueOrderingAndFilters(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	// Three due words with distinct due times, one not yet due, one learned.
	for i, w := range []Word{
		testWord("w-1", "一", now.Add(-3*time.Hour)),
		testWord("w-2", "二", now.Add(-2*time.Hour)),
		testWord("w-3", "三", now.Add(-1*time.Hour)),
		testWord("w-future", "四", now.Add(time.Hour)),
		testWord("w-learned", "五", now.Add(-4*time.Hour)),
	} {
		w.CreatedAt = now.Add(time.Duration(i) * time.Minute)
		if err := s.CreateWord(w); err != nil {
			t.Fatalf("CreateWord(%s): %v", w.ID, err)
		}
	}
	if err := s.SetLearned("w-learned", true); err != nil {
		t.Fatalf("SetLearned: %v", err)
	}

	due, err := s.FindDue(now, nil, 10)
	if err != nil {
		t.Fatalf("FindDue: %v", err)
	}
	gotIDs := make([]string, len(due))
	for i, w := range due {
		gotIDs[i] = w.ID
	}
	want := []string{"w-1", "w-2", "w-3"}
	if fmt.Sprint(gotIDs) != fmt.Sprint(want) {
		t.Errorf("FindDue order = %v, want %v", gotIDs, want)
	}

	// Excluding the most-due word shifts the head of the queue.
	due, err = s.FindDue(now, []string{"w-1"}, 10)
	if err != nil {
		t.Fatalf("FindDue excluding: %v", err)
	}
	if len(due) != 2 || due[0].ID != "w-2" {
		t.Errorf("FindDue excluding w-1 = %v", due)
	}

	count, err := s.CountDue(now, []string{"w-1"})
	if err != nil {
		t.Fatalf("CountDue: %v", err)
	}
	if count != 2 {
		t.Errorf("CountDue = %d, want 2", count)
	}
}

// Equal due timestamps fall back to creation order, which is the contract
// the review session's "serve in creation order" scenario relies on.
func TestFindDueTieBreakByCreatedAt(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	for i, id := range []string{"w-a", "w-b", "w-c"} {
		w := testWord(id, id, now.Add(-time.Hour))
		w.CreatedAt = now.Add(time.Duration(i-10) * time.Minute)
		if err := s.CreateWord(w); err != nil {
			t.Fatalf("CreateWord(%s): %v", id, err)
		}
	}

	due, err := s.FindDue(now, nil, 10)
	if err != nil {
		t.Fatalf("FindDue: %v", err)
	}
	if len(due) != 3 || due[0].ID != "w-a" || due[1].ID != "w-b" || due[2].ID != "w-c" {
		ids := make([]string, len(due))
		for i, w := range due {
			ids[i] = w.ID
		}
		t.Errorf("tie-break order = %v, want creation order", ids)
	}
}

func TestFindDueLimit(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 5; i++ {
		w := testWord(fmt.Sprintf("w-%d", i), fmt.Sprintf("词%d", i), now.Add(-time.Hour))
		w.CreatedAt = now.Add(time.Duration(i) * time.Second)
		if err := s.CreateWord(w); err != nil {
			t.Fatalf("CreateWord: %v", err)
		}
	}

	due, err := s.FindDue(now, nil, 2)
	if err != nil {
		t.Fatalf("FindDue: %v", err)
	}
	if len(due) != 2 {
		t.Errorf("FindDue limit 2 returned %d rows", len(due))
	}
}

func TestListWordsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	for i, id := range []string{"w-1", "w-2", "w-3"} {
		w := testWord(id, id, now)
		w.CreatedAt = now.Add(time.Duration(i) * time.Minute)
		if err := s.CreateWord(w); err != nil {
			t.Fatalf("CreateWord: %v", err)
		}
	}

	words, err := s.ListWords(2, 0)
	if err != nil {
		t.Fatalf("ListWords: %v", err)
	}
	if len(words) != 2 || words[0].ID != "w-3" || words[1].ID != "w-2" {
		t.Errorf("ListWords(2, 0) = %v", words)
	}

	words, err = s.ListWords(2, 2)
	if err != nil {
		t.Fatalf("ListWords offset: %v", err)
	}
	if len(words) != 1 || words[0].ID != "w-1" {
		t.Errorf("ListWords(2, 2) = %v", words)
	}
}

func TestLookupHistory(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	entries := []Lookup{
		{ID: "l-1", Term: "apple", Found: true, CreatedAt: now.Add(-2 * time.Minute)},
		{ID: "l-2", Term: "aple", Found: false, CreatedAt: now.Add(-time.Minute)},
		{ID: "l-3", Term: "pear", Found: true, CreatedAt: now},
	}
	for _, l := range entries {
		if err := s.RecordLookup(l); err != nil {
			t.Fatalf("RecordLookup(%s): %v", l.Term, err)
		}
	}

	got, err := s.RecentLookups(2)
	if err != nil {
		t.Fatalf("RecentLookups: %v", err)
	}
	if len(got) != 2 || got[0].Term != "pear" || got[1].Term != "aple" {
		t.Errorf("RecentLookups = %v", got)
	}
	if got[1].Found {
		t.Error("l-2 should have Found = false")
	}
}
