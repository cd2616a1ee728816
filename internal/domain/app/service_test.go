package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
)

// -- Mock Repository --

type mockAppRepo struct {
	store  map[int64]*App
	nextID int64
}

func newMockAppRepo() *mockAppRepo {
	return &mockAppRepo{store: make(map[int64]*App)}
}

func (m *mockAppRepo) Create(_ context.Context, a *App) error {
	for _, existing := range m.store {
		if existing.Code == a.Code {
			return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
		}
	}
	m.nextID++
	a.ID = m.nextID
	m.store[a.ID] = a
	return nil
}

func (m *mockAppRepo) GetByID(_ context.Context, id int64) (*App, error) {
	return m.store[id], nil
}

func (m *mockAppRepo) GetByCode(_ context.Context, code string) (*App, error) {
	for _, a := range m.store {
		if a.Code == code {
			return a, nil
		}
	}
	return nil, nil
}

func (m *mockAppRepo) List(_ context.Context, limit, offset int) ([]*App, int, error) {
	var r []*App
	for _, a := range m.store {
		r = append(r, a)
	}
	return r, len(r), nil
}

func (m *mockAppRepo) GetWatching(_ context.Context) ([]*App, error) {
	var r []*App
	for _, a := range m.store {
		if a.Watching {
			r = append(r, a)
		}
	}
	return r, nil
}

func (m *mockAppRepo) Update(_ context.Context, a *App) error {
	if _, ok := m.store[a.ID]; !ok {
		return fmt.Errorf("not found")
	}
	m.store[a.ID] = a
	return nil
}

func (m *mockAppRepo) Delete(_ context.Context, id int64) error {
	delete(m.store, id)
	return nil
}

func newTestService() *Service {
	return NewService(newMockAppRepo())
}

// -- Service Tests --

func TestCreateApp_Success(t *testing.T) {
	svc := newTestService()
	a := &App{Name: "Checkout", Code: "checkout", Watching: true}
	if err := svc.CreateApp(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID == 0 {
		t.Error("expected ID to be set")
	}
}

func TestCreateApp_MissingName(t *testing.T) {
	svc := newTestService()
	a := &App{Code: "checkout"}
	if err := svc.CreateApp(context.Background(), a); err == nil {
		t.Fatal("expected error for missing name")
	}
}

func TestCreateApp_MissingCode(t *testing.T) {
	svc := newTestService()
	a := &App{Name: "Checkout"}
	if err := svc.CreateApp(context.Background(), a); err == nil {
		t.Fatal("expected error for missing code")
	}
}

func TestCreateApp_DuplicateCode(t *testing.T) {
	svc := newTestService()
	if err := svc.CreateApp(context.Background(), &App{Name: "Checkout", Code: "checkout"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := svc.CreateApp(context.Background(), &App{Name: "Checkout Two", Code: "checkout"})
	if err == nil {
		t.Fatal("expected error for duplicate code")
	}
}

func TestGetApp_Success(t *testing.T) {
	svc := newTestService()
	a := &App{Name: "Checkout", Code: "checkout"}
	svc.CreateApp(context.Background(), a)
	got, err := svc.GetApp(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.ID != a.ID {
		t.Error("ID mismatch")
	}
}

func TestGetApp_NotFound(t *testing.T) {
	svc := newTestService()
	got, err := svc.GetApp(context.Background(), 999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for unknown app, got %+v", got)
	}
}

func TestGetAppByCode(t *testing.T) {
	svc := newTestService()
	a := &App{Name: "Billing", Code: "billing"}
	svc.CreateApp(context.Background(), a)
	got, err := svc.GetAppByCode(context.Background(), "billing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.ID != a.ID {
		t.Error("expected app by code")
	}
}

func TestGetWatchingApps(t *testing.T) {
	svc := newTestService()
	svc.CreateApp(context.Background(), &App{Name: "Checkout", Code: "checkout", Watching: true})
	svc.CreateApp(context.Background(), &App{Name: "Billing", Code: "billing", Watching: true})
	svc.CreateApp(context.Background(), &App{Name: "Legacy", Code: "legacy", Watching: false})

	watching, err := svc.GetWatchingApps(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(watching) != 2 {
		t.Errorf("expected 2 watching apps, got %d", len(watching))
	}
}

func TestUpdateApp_Success(t *testing.T) {
	svc := newTestService()
	a := &App{Name: "Checkout", Code: "checkout"}
	svc.CreateApp(context.Background(), a)
	a.Watching = true
	if err := svc.UpdateApp(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := svc.GetApp(context.Background(), a.ID)
	if !got.Watching {
		t.Error("expected watching to be updated")
	}
}

func TestUpdateApp_MissingID(t *testing.T) {
	svc := newTestService()
	if err := svc.UpdateApp(context.Background(), &App{Name: "Checkout"}); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestDeleteApp(t *testing.T) {
	svc := newTestService()
	a := &App{Name: "Checkout", Code: "checkout"}
	svc.CreateApp(context.Background(), a)
	if err := svc.DeleteApp(context.Background(), a.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := svc.GetApp(context.Background(), a.ID)
	if got != nil {
		t.Fatal("expected app to be gone after delete")
	}
}
