package main

import (
	"context"
	"log"
	"os"
	"time"

	"clinic-backend/internal/auth"
	"clinic-backend/internal/config"
	"clinic-backend/internal/db"
	"clinic-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type seedUser struct {
	Email       string
	FirstName   string
	LastName    string
	Role        string
	Specialty   string
	PasswordEnv string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, cols, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Disconnect(context.Background())

	if err := db.EnsureIndexes(ctx, cols); err != nil {
		log.Fatal(err)
	}

	if err := seedClinicSettings(ctx, cols, cfg.Timezone); err != nil {
		log.Fatalf("seed settings error: %v", err)
	}

	seedUsers := []seedUser{
		{
			Email:       envOrDefault("SEED_MANAGER_EMAIL", "manager@clinic.local"),
			FirstName:   "Morgan",
			LastName:    "Hale",
			Role:        models.RoleClinicManager,
			PasswordEnv: "SEED_MANAGER_PASSWORD",
		},
		{
			Email:       envOrDefault("SEED_RECEPTION_EMAIL", "reception@clinic.local"),
			FirstName:   "Riley",
			LastName:    "Chen",
			Role:        models.RoleReception,
			PasswordEnv: "SEED_RECEPTION_PASSWORD",
		},
		{
			Email:       envOrDefault("SEED_DOCTOR_EMAIL", "doctor@clinic.local"),
			FirstName:   "Alex",
			LastName:    "Nguyen",
			Role:        models.RoleDoctor,
			Specialty:   "General Practice",
			PasswordEnv: "SEED_DOCTOR_PASSWORD",
		},
		{
			Email:       envOrDefault("SEED_PATIENT_EMAIL", "patient@clinic.local"),
			FirstName:   "Sam",
			LastName:    "Taylor",
			Role:        models.RolePatient,
			PasswordEnv: "SEED_PATIENT_PASSWORD",
		},
	}

	var doctorID string
	for _, u := range seedUsers {
		password := os.Getenv(u.PasswordEnv)
		if password == "" {
			log.Printf("seed user: %s missing, skipping (%s)", u.Email, u.PasswordEnv)
			continue
		}
		id, err := seedUserAccount(ctx, cols, u, password, cfg.Timezone)
		if err != nil {
			log.Fatalf("seed user error for %s: %v", u.Email, err)
		}
		if u.Role == models.RoleDoctor {
			doctorID = id
		}
	}

	if doctorID != "" {
		if err := seedDoctorRoster(ctx, cols, doctorID, cfg.Timezone); err != nil {
			log.Fatalf("seed roster error: %v", err)
		}
	}

	log.Println("seed completed")
}

func seedClinicSettings(ctx context.Context, cols *db.Collections, loc *time.Location) error {
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":                  primitive.NewObjectID().Hex(),
			"name":                 envOrDefault("SEED_CLINIC_NAME", "Harbour Telehealth Clinic"),
			"email":                envOrDefault("SEED_CLINIC_EMAIL", "hello@clinic.local"),
			"phone":                envOrDefault("SEED_CLINIC_PHONE", "+61280000000"),
			"initialConsultPrice":  50000,
			"followUpConsultPrice": 30000,
			"currency":             "aud",
		},
	}
	_, err := cols.ClinicSettings.UpdateOne(ctx, bson.M{}, update, options.Update().SetUpsert(true))
	return err
}

func seedUserAccount(ctx context.Context, cols *db.Collections, u seedUser, password string, loc *time.Location) (string, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", err
	}

	id := primitive.NewObjectID().Hex()
	now := time.Now().In(loc)
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":          id,
			"email":        u.Email,
			"passwordHash": hash,
			"firstName":    u.FirstName,
			"lastName":     u.LastName,
			"role":         u.Role,
			"isActive":     true,
			"specialty":    u.Specialty,
			"createdAt":    now,
			"updatedAt":    now,
		},
	}
	if _, err := cols.Users.UpdateOne(ctx, bson.M{"email": u.Email}, update, options.Update().SetUpsert(true)); err != nil {
		return "", err
	}

	var existing models.User
	if err := cols.Users.FindOne(ctx, bson.M{"email": u.Email}).Decode(&existing); err != nil {
		return "", err
	}
	return existing.ID, nil
}

// seedDoctorRoster opens Monday through Friday 09:00-17:00 for the
// seeded doctor.
func seedDoctorRoster(ctx context.Context, cols *db.Collections, doctorID string, loc *time.Location) error {
	for day := 1; day <= 5; day++ {
		filter := bson.M{
			"doctorId":  doctorID,
			"dayOfWeek": day,
			"isBlocked": false,
			"specificDate": bson.M{
				"$in": bson.A{nil, ""},
			},
		}
		update := bson.M{
			"$setOnInsert": bson.M{
				"_id":       primitive.NewObjectID().Hex(),
				"doctorId":  doctorID,
				"dayOfWeek": day,
				"startTime": "09:00",
				"endTime":   "17:00",
				"isBlocked": false,
				"createdAt": time.Now().In(loc),
			},
		}
		if _, err := cols.Availability.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
			return err
		}
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
