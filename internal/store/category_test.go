package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"photostore/internal/models"
)

func TestCategoryStore_CreateAndTree(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	ctx := context.Background()

	root := createCategory(t, s, "Trips "+uuid.NewString(), nil)
	child := createCategory(t, s, "Alps", &root.ID)

	got, err := s.FindByID(ctx, child.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got == nil || got.ParentID == nil || *got.ParentID != root.ID {
		t.Fatalf("child parent: got %+v", got)
	}
	if got.MainItemID != nil {
		t.Error("new category should have no main item")
	}

	missing, err := s.FindByID(ctx, uuid.New())
	if err != nil || missing != nil {
		t.Errorf("FindByID(missing) = %v, %v; want nil, nil", missing, err)
	}

	tree, err := s.Tree(ctx)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	var found *models.Category
	for i := range tree {
		if tree[i].ID == root.ID {
			found = &tree[i]
		}
	}
	if found == nil || len(found.Children) != 1 || found.Children[0].ID != child.ID {
		t.Errorf("tree should nest the child under its root, got %+v", found)
	}
}

func TestCategoryStore_IncrementCounter(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	ctx := context.Background()
	c := createCategory(t, s, "Counters", nil)

	if err := s.IncrementCounter(ctx, c.ID, models.CounterItems, 3); err != nil {
		t.Fatalf("IncrementCounter: %v", err)
	}
	if err := s.IncrementCounter(ctx, c.ID, models.CounterItems, -1); err != nil {
		t.Fatalf("IncrementCounter: %v", err)
	}
	if err := s.IncrementCounter(ctx, c.ID, models.CounterChildren, 2); err != nil {
		t.Fatalf("IncrementCounter: %v", err)
	}
	if err := s.IncrementCounter(ctx, c.ID, models.CounterField("name"), 1); err == nil {
		t.Error("unknown counter field should be rejected")
	}

	got, _ := s.FindByID(ctx, c.ID)
	if got.ItemCount != 2 || got.ChildCount != 2 {
		t.Errorf("counters: got items=%d children=%d, want 2/2", got.ItemCount, got.ChildCount)
	}
}

func TestCategoryStore_MainItemUpdatesAreConditional(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	ctx := context.Background()
	c := createCategory(t, s, "Main", nil)
	first, second := uuid.New(), uuid.New()

	ok, err := s.SetMainItemIfUnset(ctx, c.ID, first)
	if err != nil || !ok {
		t.Fatalf("first set: %v, %v", ok, err)
	}
	ok, err = s.SetMainItemIfUnset(ctx, c.ID, second)
	if err != nil || ok {
		t.Fatalf("second set should lose: %v, %v", ok, err)
	}

	ok, err = s.ClearMainItemIfEquals(ctx, c.ID, second)
	if err != nil || ok {
		t.Fatalf("clearing another item should be a no-op: %v, %v", ok, err)
	}
	ok, err = s.ClearMainItemIfEquals(ctx, c.ID, first)
	if err != nil || !ok {
		t.Fatalf("clear: %v, %v", ok, err)
	}

	got, _ := s.FindByID(ctx, c.ID)
	if got.MainItemID != nil {
		t.Errorf("main item should be cleared, got %v", got.MainItemID)
	}

	ok, err = s.SetMainItemIfUnset(ctx, uuid.New(), first)
	if err != nil || ok {
		t.Errorf("set on a missing category: %v, %v; want false, nil", ok, err)
	}
}

func TestCategoryStore_ChildMainItems(t *testing.T) {
	db := testDB(t)
	cats := NewCategoryStore(db)
	items := NewItemStore(db)
	accounts := NewAccountStore(db)
	ctx := context.Background()

	account := createAccount(t, accounts, 1<<20)
	root := createCategory(t, cats, "Root", nil)
	a := createCategory(t, cats, "A", &root.ID)
	b := createCategory(t, cats, "B", &root.ID)
	createCategory(t, cats, "Empty", &root.ID)

	remote := func(cat uuid.UUID, ts time.Time) *models.Item {
		t.Helper()
		md5hex, shahex := digests(t)
		loc := "photo/" + uuid.NewString() + ".jpg"
		it, err := items.Create(ctx, &models.Item{
			CategoryID: cat, Name: "x", OriginalFilename: "x.jpg",
			ContentType: models.ContentTypeJPEG, MD5: md5hex, SHA256: shahex,
			OriginalTimestamp: &ts, AccountID: &account.ID, StorageFilename: &loc,
		})
		if err != nil {
			t.Fatalf("create item: %v", err)
		}
		return it
	}

	late := remote(a.ID, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	early := remote(b.ID, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	cats.SetMainItemIfUnset(ctx, a.ID, late.ID)
	cats.SetMainItemIfUnset(ctx, b.ID, early.ID)

	got, err := cats.ChildMainItems(ctx, root.ID)
	if err != nil {
		t.Fatalf("ChildMainItems: %v", err)
	}
	if len(got) != 2 || got[0].ID != early.ID || got[1].ID != late.ID {
		t.Errorf("want [early, late], got %d items", len(got))
	}
}
