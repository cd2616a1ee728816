package notification

import (
	"context"
	"fmt"
	"sort"
	"testing"
)

// -- Mock Repository --

type mockNotificationRepo struct {
	store  map[int64]*Notification
	nextID int64
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{store: make(map[int64]*Notification), nextID: 1}
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *Notification) error {
	n.ID = m.nextID
	m.nextID++
	cp := *n
	m.store[n.ID] = &cp
	return nil
}

func (m *mockNotificationRepo) GetByID(ctx context.Context, id int64) (*Notification, error) {
	n, ok := m.store[id]
	if !ok {
		return nil, nil
	}
	return n, nil
}

func (m *mockNotificationRepo) List(ctx context.Context, limit, offset int) ([]*Notification, int, error) {
	ids := make([]int64, 0, len(m.store))
	for id := range m.store {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	var out []*Notification
	for i, id := range ids {
		if i < offset {
			continue
		}
		if len(out) >= limit {
			break
		}
		out = append(out, m.store[id])
	}
	return out, len(m.store), nil
}

func (m *mockNotificationRepo) CountUnread(ctx context.Context) (int, error) {
	count := 0
	for _, n := range m.store {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id int64) error {
	n, ok := m.store[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	n.IsRead = true
	return nil
}

func (m *mockNotificationRepo) MarkAllRead(ctx context.Context) error {
	for _, n := range m.store {
		n.IsRead = true
	}
	return nil
}

func (m *mockNotificationRepo) Delete(ctx context.Context, id int64) error {
	delete(m.store, id)
	return nil
}

func newTestService() (*Service, *mockNotificationRepo) {
	repo := newMockNotificationRepo()
	return NewService(repo), repo
}

// -- Tests --

func TestCreateNotification_Success(t *testing.T) {
	svc, repo := newTestService()
	n := &Notification{Title: "Report ready", Message: "E2E report for 2024-03-01 is ready", Type: TypeSuccess}

	if err := svc.CreateNotification(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.ID == 0 {
		t.Error("expected ID to be assigned")
	}
	if len(repo.store) != 1 {
		t.Errorf("expected 1 notification in store, got %d", len(repo.store))
	}
}

func TestCreateNotification_MissingTitle(t *testing.T) {
	svc, _ := newTestService()
	n := &Notification{Message: "no title"}

	err := svc.CreateNotification(context.Background(), n)
	if err == nil {
		t.Fatal("expected error for missing title")
	}
}

func TestCreateNotification_MissingMessage(t *testing.T) {
	svc, _ := newTestService()
	n := &Notification{Title: "no message"}

	err := svc.CreateNotification(context.Background(), n)
	if err == nil {
		t.Fatal("expected error for missing message")
	}
}

func TestCreateNotification_DefaultsTypeToInfo(t *testing.T) {
	svc, _ := newTestService()
	n := &Notification{Title: "Heads up", Message: "something happened"}

	if err := svc.CreateNotification(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Type != TypeInfo {
		t.Errorf("expected type %q, got %q", TypeInfo, n.Type)
	}
}

func TestCreateNotification_InvalidType(t *testing.T) {
	svc, _ := newTestService()
	n := &Notification{Title: "bad", Message: "bad", Type: "shouting"}

	err := svc.CreateNotification(context.Background(), n)
	if err == nil {
		t.Fatal("expected error for invalid type")
	}
}

func TestCountUnread(t *testing.T) {
	svc, _ := newTestService()
	for i := 0; i < 3; i++ {
		n := &Notification{Title: fmt.Sprintf("n%d", i), Message: "m"}
		if err := svc.CreateNotification(context.Background(), n); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := svc.MarkRead(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count, err := svc.CountUnread(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 unread, got %d", count)
	}
}

func TestMarkRead_InvalidID(t *testing.T) {
	svc, _ := newTestService()
	if err := svc.MarkRead(context.Background(), 0); err == nil {
		t.Fatal("expected error for zero id")
	}
}

func TestMarkAllRead(t *testing.T) {
	svc, _ := newTestService()
	for i := 0; i < 3; i++ {
		n := &Notification{Title: fmt.Sprintf("n%d", i), Message: "m"}
		if err := svc.CreateNotification(context.Background(), n); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if err := svc.MarkAllRead(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count, err := svc.CountUnread(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 unread after mark-all, got %d", count)
	}
}

func TestListNotifications_NewestFirst(t *testing.T) {
	svc, _ := newTestService()
	for i := 0; i < 3; i++ {
		n := &Notification{Title: fmt.Sprintf("n%d", i), Message: "m"}
		if err := svc.CreateNotification(context.Background(), n); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	items, total, err := svc.ListNotifications(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != 3 {
		t.Errorf("expected newest notification first, got id %d", items[0].ID)
	}
}

func TestDeleteNotification_Success(t *testing.T) {
	svc, repo := newTestService()
	n := &Notification{Title: "gone soon", Message: "m"}
	if err := svc.CreateNotification(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.DeleteNotification(context.Background(), n.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.store) != 0 {
		t.Errorf("expected empty store, got %d", len(repo.store))
	}
}

func TestDeleteNotification_InvalidID(t *testing.T) {
	svc, _ := newTestService()
	if err := svc.DeleteNotification(context.Background(), -1); err == nil {
		t.Fatal("expected error for negative id")
	}
}
