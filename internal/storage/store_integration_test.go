package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"drone-fleet/internal/common"
	"drone-fleet/internal/drone"
	domainerrors "drone-fleet/internal/errors"
	"drone-fleet/internal/mission"
	"drone-fleet/internal/repo/postgres"
	"drone-fleet/internal/report"
)

func skipIfNoInfra(t *testing.T) {
	t.Helper()
	if os.Getenv("INTEGRATION_TEST") == "" {
		t.Skip("skipping integration test; set INTEGRATION_TEST=1 and ensure Postgres is running")
	}
}

func setupStore(t *testing.T) *Store {
	t.Helper()
	skipIfNoInfra(t)

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		dsn = "host=localhost port=5432 user=fleet password=fleet dbname=drone_fleet_test sslmode=disable"
	}
	db, err := postgres.Connect(context.Background(), dsn, postgres.DefaultPoolConfig(), 5*time.Second)
	if err != nil {
		t.Fatalf("postgres connect: %v", err)
	}
	if err := postgres.RunMigrationsDown(db); err != nil {
		t.Fatalf("migrate down: %v", err)
	}
	if err := postgres.RunMigrationsUp(db); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return New(db, drone.NewRepository(), mission.NewRepository(), report.NewRepository())
}

func seedDrone(t *testing.T, s *Store, id string, lat, lng float64) *drone.Drone {
	t.Helper()
	d := &drone.Drone{
		ID: id, Name: id, Description: "integration", Type: drone.CategoryAir,
		EngineType: drone.EngineElectric, FuelOrBatteryLevel: 90,
		CurrentLatitude: lat, CurrentLongitude: lng,
		MaxSpeedKmh: 50, MaxDistanceKm: 10, PricePerHourUSD: 5, NoiseLevelDb: 40,
		LengthCm: 30, WidthCm: 30, HeightCm: 10, MaxLoadKg: 1,
		Specialization: drone.SpecRescue, IsActive: true,
	}
	if err := s.UpsertDrone(context.Background(), d); err != nil {
		t.Fatalf("upsert drone: %v", err)
	}
	return d
}

func seedMission(t *testing.T, s *Store, start time.Time, droneIDs ...string) *mission.Mission {
	t.Helper()
	ctx := context.Background()
	m := mission.NewMission("m", "integration", common.NewLocation(51.6, -0.12), start, nil, mission.GoalRescue, droneIDs)
	repo := mission.NewRepository()
	if err := repo.Create(ctx, s.db, m); err != nil {
		t.Fatalf("create mission: %v", err)
	}
	if err := repo.AssignDrones(ctx, s.db, m.ID, droneIDs); err != nil {
		t.Fatalf("assign drones: %v", err)
	}
	return m
}

func TestStore_DueMissionsLifecycle(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	d1 := seedDrone(t, s, "D1", 51.5, -0.12)
	seedDrone(t, s, "D2", 51.5, -0.13)
	older := seedMission(t, s, time.Now().Add(-time.Hour), "D1", "D2")
	seedMission(t, s, time.Now().Add(-time.Minute), "D1")
	seedMission(t, s, time.Now().Add(time.Hour), "D1")

	due, err := s.FindIdleDronesWithDueMissions(ctx, time.Now())
	if err != nil {
		t.Fatalf("due query: %v", err)
	}
	if len(due) != 2 || due[0].DroneID != "D1" || due[1].DroneID != "D2" {
		t.Fatalf("unexpected due drones %+v", due)
	}
	if len(due[0].Missions) != 2 || due[0].Missions[0].ID != older.ID {
		t.Fatalf("expected D1's two due missions, oldest first, got %+v", due[0].Missions)
	}
	if len(due[0].Missions[0].DroneIDs) != 2 {
		t.Fatalf("expected assigned drone ids, got %v", due[0].Missions[0].DroneIDs)
	}

	// D1 departs and comes back; the mission stays open while D2 is out.
	d1.IsOnMission = true
	if err := s.UpsertDrone(ctx, d1); err != nil {
		t.Fatal(err)
	}
	got, err := s.FindMissionContaining(ctx, "D1")
	if err != nil || got.ID != older.ID {
		t.Fatalf("expected %s, got %v %v", older.ID, got, err)
	}

	d2, _ := s.FindDrone(ctx, "D2")
	d2.IsOnMission = true
	if err := s.UpsertDrone(ctx, d2); err != nil {
		t.Fatal(err)
	}

	d1.IsOnMission = false
	if err := s.UpsertDrone(ctx, d1); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkDroneReturned(ctx, older.ID, "D1", time.Now()); err != nil {
		t.Fatal(err)
	}
	closed, err := s.MarkMissionCompletedIfAllDronesIdle(ctx, older.ID, time.Now())
	if err != nil || closed {
		t.Fatalf("mission must stay open: closed=%v err=%v", closed, err)
	}

	// D1 is not re-dispatched to the mission it came back from.
	due, _ = s.FindIdleDronesWithDueMissions(ctx, time.Now())
	for _, dd := range due {
		for _, m := range dd.Missions {
			if dd.DroneID == "D1" && m.ID == older.ID {
				t.Fatal("returned drone must not be due for the same mission")
			}
		}
	}

	d2.IsOnMission = false
	if err := s.UpsertDrone(ctx, d2); err != nil {
		t.Fatal(err)
	}
	closed, err = s.MarkMissionCompletedIfAllDronesIdle(ctx, older.ID, time.Now())
	if err != nil || !closed {
		t.Fatalf("mission must close: closed=%v err=%v", closed, err)
	}
}

func TestStore_NearbyDrones(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	for _, d := range []*drone.Drone{
		seedDrone(t, s, "D1", 51.50, -0.12),
		seedDrone(t, s, "D2", 51.51, -0.12),
		seedDrone(t, s, "D3", 51.80, -0.12),
	} {
		d.IsOnMission = true
		if err := s.UpsertDrone(ctx, d); err != nil {
			t.Fatal(err)
		}
	}
	m := seedMission(t, s, time.Now().Add(-time.Minute), "D1", "D2", "D3")

	box := common.BoxAround(common.NewLocation(51.50, -0.12), 0.1)
	near, err := s.FindNearbyDrones(ctx, m.ID, "D1", box)
	if err != nil {
		t.Fatal(err)
	}
	if len(near) != 1 || near[0].ID != "D2" {
		t.Fatalf("expected only D2, got %+v", near)
	}
}

func TestStore_ReportIdempotentCreate(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	seedDrone(t, s, "D1", 51.5, -0.12)
	m := seedMission(t, s, time.Now().Add(-time.Minute), "D1")

	if _, err := s.FindReport(ctx, m.ID); !domainerrors.IsNotFound(err) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}

	first := report.NewReport(m.ID, "D1", nil, []string{"aGk="}, time.Now())
	if err := s.CreateReport(ctx, first); err != nil {
		t.Fatalf("create report: %v", err)
	}
	dup := report.NewReport(m.ID, "D1", nil, nil, time.Now())
	if err := s.CreateReport(ctx, dup); !domainerrors.IsCode(err, domainerrors.ErrConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}

	got, err := s.FindReport(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != first.ID || len(got.Images) != 1 {
		t.Fatalf("unexpected stored report %+v", got)
	}
}
