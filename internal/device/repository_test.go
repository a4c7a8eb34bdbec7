package device

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/skyeyinkun/homelink-core/internal/infrastructure/database"
	_ "github.com/skyeyinkun/homelink-core/migrations"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func testDevice(id int, entityID string) *Device {
	now := time.Now().UTC().Truncate(time.Millisecond)
	features := 1
	brightness := 200
	return &Device{
		ID:         id,
		EntityID:   entityID,
		Name:       "Kitchen Light",
		Room:       "Kitchen",
		Category:   CategoryLighting,
		Type:       "dimmer",
		Icon:       "mdi:lightbulb",
		Visibility: VisibilityVisible,
		Params:     Params{SupportedFeatures: &features},
		Mirror:     Mirror{IsOn: true, HAState: "on", HAAvailable: true, Brightness: &brightness},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	want := testDevice(1000, "light.kitchen")
	if err := repo.Create(ctx, want); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(ctx, 1000)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != want.Name || got.Room != want.Room || got.Type != want.Type {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if got.Params.SupportedFeatures == nil || *got.Params.SupportedFeatures != 1 {
		t.Errorf("params not round-tripped: %+v", got.Params)
	}
	if !got.Mirror.IsOn || got.Mirror.Brightness == nil || *got.Mirror.Brightness != 200 {
		t.Errorf("mirror not round-tripped: %+v", got.Mirror)
	}

	byEntity, err := repo.GetByEntityID(ctx, "light.kitchen")
	if err != nil {
		t.Fatalf("GetByEntityID() error = %v", err)
	}
	if byEntity.ID != 1000 {
		t.Errorf("GetByEntityID() id = %d, want 1000", byEntity.ID)
	}
}

func TestSQLiteRepository_GetMissing(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, 42); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() error = %v, want ErrDeviceNotFound", err)
	}
	if _, err := repo.GetByEntityID(ctx, "light.nowhere"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByEntityID() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_DuplicateID(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, testDevice(1000, "light.kitchen")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	err := repo.Create(ctx, testDevice(1000, "light.bedroom"))
	if !errors.Is(err, ErrDeviceExists) {
		t.Errorf("duplicate Create() error = %v, want ErrDeviceExists", err)
	}
}

func TestSQLiteRepository_DuplicateEntityID(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, testDevice(1000, "light.kitchen")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	err := repo.Create(ctx, testDevice(1001, "light.kitchen"))
	if !errors.Is(err, ErrDeviceExists) {
		t.Errorf("duplicate entity Create() error = %v, want ErrDeviceExists", err)
	}
}

func TestSQLiteRepository_List(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for i, entity := range []string{"light.a", "light.b", "switch.c"} {
		if err := repo.Create(ctx, testDevice(1000+i, entity)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	devices, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("List() = %d devices, want 3", len(devices))
	}
	for i := 1; i < len(devices); i++ {
		if devices[i-1].ID > devices[i].ID {
			t.Errorf("devices not ordered by id: %d before %d", devices[i-1].ID, devices[i].ID)
		}
	}
}

func TestSQLiteRepository_Update(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	d := testDevice(1000, "light.kitchen")
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	d.Name = "Pendant Light"
	d.Room = "Dining"
	d.Mirror.IsOn = false
	if err := repo.Update(ctx, d); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(ctx, 1000)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Pendant Light" || got.Room != "Dining" || got.Mirror.IsOn {
		t.Errorf("update not applied: %+v", got)
	}

	t.Run("missing device", func(t *testing.T) {
		missing := testDevice(9999, "light.ghost")
		if err := repo.Update(ctx, missing); !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("Update() error = %v, want ErrDeviceNotFound", err)
		}
	})
}

func TestSQLiteRepository_Mappings(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, testDevice(1000, "light.kitchen")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.SaveMapping(ctx, 1000, "light.kitchen"); err != nil {
		t.Fatalf("SaveMapping() error = %v", err)
	}

	mappings, err := repo.Mappings(ctx)
	if err != nil {
		t.Fatalf("Mappings() error = %v", err)
	}
	if mappings[1000] != "light.kitchen" {
		t.Errorf("Mappings() = %v", mappings)
	}

	// Upsert replaces the existing row.
	if err := repo.SaveMapping(ctx, 1000, "light.kitchen_2"); err != nil {
		t.Fatalf("SaveMapping() upsert error = %v", err)
	}
	mappings, _ = repo.Mappings(ctx)
	if mappings[1000] != "light.kitchen_2" {
		t.Errorf("after upsert Mappings() = %v", mappings)
	}

	if err := repo.DeleteMapping(ctx, 1000); err != nil {
		t.Fatalf("DeleteMapping() error = %v", err)
	}
	mappings, _ = repo.Mappings(ctx)
	if len(mappings) != 0 {
		t.Errorf("after delete Mappings() = %v", mappings)
	}
}

func TestSQLiteRepository_DeleteCascadesMapping(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, testDevice(1000, "light.kitchen")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.SaveMapping(ctx, 1000, "light.kitchen"); err != nil {
		t.Fatalf("SaveMapping() error = %v", err)
	}

	if err := repo.Delete(ctx, 1000); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, 1000); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() after delete error = %v", err)
	}
	mappings, err := repo.Mappings(ctx)
	if err != nil {
		t.Fatalf("Mappings() error = %v", err)
	}
	if len(mappings) != 0 {
		t.Error("mapping row should cascade on device delete")
	}

	if err := repo.Delete(ctx, 1000); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("second Delete() error = %v, want ErrDeviceNotFound", err)
	}
}
