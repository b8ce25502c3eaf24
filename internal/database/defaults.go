package database

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/jask/ledgersync/internal/database/repository"
)

// SeedDefaults ensures baseline categories and taxonomy mappings exist for
// new databases. It is idempotent and safe to run on every startup.
func SeedDefaults(ctx context.Context, db *sql.DB) error {
	catRepo := repository.NewCategoryRepo(db)
	taxRepo := repository.NewTaxonomyRepo(db)

	existing, err := catRepo.List(ctx)
	if err == nil && len(existing) > 0 {
		return nil
	}

	defaults := []struct {
		name  string
		codes []string
	}{
		{"Income", []string{"INCOME", "TRANSFER_IN"}},
		{"Groceries", []string{"FOOD_AND_DRINK_GROCERIES", "GENERAL_MERCHANDISE_SUPERSTORES"}},
		{"Restaurants", []string{"FOOD_AND_DRINK_RESTAURANT", "FOOD_AND_DRINK_FAST_FOOD", "FOOD_AND_DRINK_COFFEE"}},
		{"Transport", []string{"TRANSPORTATION_PUBLIC_TRANSIT", "TRANSPORTATION_TAXIS_AND_RIDE_SHARES", "TRANSPORTATION_GAS"}},
		{"Shopping", []string{"GENERAL_MERCHANDISE_ONLINE_MARKETPLACES", "GENERAL_MERCHANDISE_CLOTHING_AND_ACCESSORIES"}},
		{"Utilities", []string{"RENT_AND_UTILITIES_GAS_AND_ELECTRICITY", "RENT_AND_UTILITIES_INTERNET_AND_CABLE", "RENT_AND_UTILITIES_WATER"}},
		{"Subscriptions", []string{"ENTERTAINMENT_TV_AND_MOVIES", "ENTERTAINMENT_MUSIC_AND_AUDIO"}},
		{"Health", []string{"MEDICAL_PRIMARY_CARE", "MEDICAL_PHARMACIES_AND_SUPPLEMENTS"}},
		{"Entertainment", []string{"ENTERTAINMENT_SPORTING_EVENTS_AMUSEMENT_PARKS_AND_MUSEUMS", "ENTERTAINMENT_VIDEO_GAMES"}},
		{"Savings", []string{"TRANSFER_OUT_SAVINGS"}},
	}

	for idx, d := range defaults {
		id := uuid.NewSHA1(uuid.NameSpaceOID, []byte("cat:"+d.name)).String()
		cat := repository.Category{ID: id, Name: d.name, SortOrder: idx}
		if err := catRepo.Upsert(ctx, cat); err != nil {
			return err
		}
		for _, code := range d.codes {
			if err := taxRepo.Upsert(ctx, code, id); err != nil {
				return err
			}
		}
	}
	return nil
}
