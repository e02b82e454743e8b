package seed

import (
	"encoding/json"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"tightship_backend/internal/model"
	"tightship_backend/pkg/config"
	"tightship_backend/pkg/plan"
)

// Plans writes the static catalog into the plans table, attaching the
// deployment's Stripe price ids. Idempotent: rows are keyed by tier.
func Plans(db *gorm.DB, prices config.StripePrices, log zerolog.Logger) error {
	priceIDs := map[plan.Tier][2]string{
		plan.TierFree:         {"", ""},
		plan.TierStarter:      {prices.StarterMonthly, prices.StarterYearly},
		plan.TierProfessional: {prices.ProfessionalMonthly, prices.ProfessionalYearly},
		plan.TierEnterprise:   {prices.EnterpriseMonthly, prices.EnterpriseYearly},
	}

	for tier, entry := range plan.Catalog {
		features, err := json.Marshal(entry.Features)
		if err != nil {
			return err
		}

		row := model.Plan{
			Tier:                 string(tier),
			Name:                 entry.Name,
			Description:          entry.Description,
			PriceMonthly:         entry.PriceMonthly,
			PriceYearly:          entry.PriceYearly,
			Features:             datatypes.JSON(features),
			MaxRestaurants:       entry.Limits.Restaurants,
			MaxProducts:          entry.Limits.Products,
			MaxAPICalls:          entry.Limits.APICalls,
			StripePriceMonthlyID: priceIDs[tier][0],
			StripePriceYearlyID:  priceIDs[tier][1],
		}

		var existing model.Plan
		err = db.Where("tier = ?", row.Tier).First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			if err := db.Create(&row).Error; err != nil {
				return err
			}
			log.Info().Str("tier", row.Tier).Msg("seeded plan")
			continue
		}
		if err != nil {
			return err
		}

		row.Model = existing.Model
		if err := db.Save(&row).Error; err != nil {
			return err
		}
	}

	return nil
}
