// Command seed loads a development database with a superadmin, a few
// volunteers, and a sample project with activities.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/volunhub/volunhub-api/internal/models"
	"github.com/volunhub/volunhub-api/internal/repository"
	"github.com/volunhub/volunhub-api/pkg/config"
	"github.com/volunhub/volunhub-api/pkg/database"
)

func main() {
	var password string
	flag.StringVar(&password, "password", "changeme", "password assigned to all seeded accounts")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash seed password: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users := repository.NewUserRepository(db)
	projects := repository.NewProjectRepository(db)
	activities := repository.NewActivityRepository(db)

	admin := &models.User{
		Email:        "admin@volunhub.local",
		PasswordHash: string(hash),
		FullName:     "Portal Administrator",
		Role:         models.RoleSuperAdmin,
		Active:       true,
	}
	if err := users.Create(ctx, admin); err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	volunteerNames := []string{"Ana Petrov", "Marco Silva", "Lena Fischer"}
	for i, name := range volunteerNames {
		v := &models.User{
			Email:        []string{"ana", "marco", "lena"}[i] + "@volunhub.local",
			PasswordHash: string(hash),
			FullName:     name,
			Role:         models.RoleVolunteer,
			Active:       true,
		}
		if err := users.Create(ctx, v); err != nil {
			log.Fatalf("seed volunteer %s: %v", name, err)
		}
	}

	project := &models.Project{
		Name:              "Riverside Cleanup",
		Description:       "Weekly cleanup shifts along the riverside park",
		Location:          "Riverside Park",
		TotalHours:        40,
		OpenForEnrollment: true,
		CoordinatorID:     admin.ID,
	}
	if err := projects.Create(ctx, project); err != nil {
		log.Fatalf("seed project: %v", err)
	}

	for _, a := range []struct {
		name  string
		hours float64
	}{
		{"Morning shift", 4},
		{"Afternoon shift", 4},
		{"Equipment maintenance", 2},
	} {
		activity := &models.Activity{
			ProjectID:  project.ID,
			Name:       a.name,
			HoursValue: a.hours,
		}
		if err := activities.Create(ctx, activity); err != nil {
			log.Fatalf("seed activity %s: %v", a.name, err)
		}
	}

	log.Printf("seeded admin %s, %d volunteers, project %s", admin.Email, len(volunteerNames), project.ID)
}
