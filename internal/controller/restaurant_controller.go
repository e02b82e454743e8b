package controller

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tightship_backend/internal/model"
	"tightship_backend/pkg/usage"
	"tightship_backend/pkg/utils/jwt"
)

type RestaurantController struct {
	db    *gorm.DB
	usage *usage.Service
	log   zerolog.Logger
}

func NewRestaurantController(db *gorm.DB, usageSvc *usage.Service, log zerolog.Logger) *RestaurantController {
	return &RestaurantController{db: db, usage: usageSvc, log: log}
}

type RestaurantInput struct {
	Name     string `json:"name" validate:"required"`
	Address  string `json:"address"`
	Phone    string `json:"phone"`
	Timezone string `json:"timezone"`
}

func (rc *RestaurantController) ListMyRestaurants(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	var restaurants []model.Restaurant
	if err := rc.db.Where("organization_id = ?", claims.OrganizationID).
		Find(&restaurants).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not fetch restaurants",
		})
	}

	return c.JSON(restaurants)
}

// CreateRestaurant counts and inserts inside one transaction so two requests
// racing at the plan limit cannot both land.
func (rc *RestaurantController) CreateRestaurant(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	input := new(RestaurantInput)
	if err := c.BodyParser(input); err != nil || input.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input",
		})
	}

	restaurant := model.Restaurant{
		OrganizationID: claims.OrganizationID,
		Name:           input.Name,
		Slug:           rc.uniqueSlug(input.Name),
		Address:        input.Address,
		Phone:          input.Phone,
	}
	if input.Timezone != "" {
		restaurant.Timezone = input.Timezone
	}

	err := rc.usage.CheckAndReserve(c.Context(), claims.OrganizationID, usage.ResourceRestaurants, func(tx *gorm.DB) error {
		return tx.Create(&restaurant).Error
	})
	if err != nil {
		var limitErr *usage.LimitExceededError
		if errors.As(err, &limitErr) {
			return c.Status(fiber.StatusForbidden).JSON(limitErr)
		}
		rc.log.Error().Err(err).Uint("organization_id", claims.OrganizationID).
			Str("operation", "create_restaurant").Msg("could not create restaurant")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not create restaurant",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(restaurant)
}

func (rc *RestaurantController) UpdateRestaurant(c *fiber.Ctx) error {
	restaurant := c.Locals("restaurant").(*model.Restaurant)

	input := new(RestaurantInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input",
		})
	}

	if input.Name != "" {
		restaurant.Name = input.Name
	}
	if input.Address != "" {
		restaurant.Address = input.Address
	}
	if input.Phone != "" {
		restaurant.Phone = input.Phone
	}
	if input.Timezone != "" {
		restaurant.Timezone = input.Timezone
	}

	if err := rc.db.Save(restaurant).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not update restaurant",
		})
	}

	return c.JSON(restaurant)
}

func (rc *RestaurantController) DeleteRestaurant(c *fiber.Ctx) error {
	restaurant := c.Locals("restaurant").(*model.Restaurant)

	err := rc.db.Transaction(func(tx *gorm.DB) error {
		var menuIDs []uint
		if err := tx.Model(&model.Menu{}).Where("restaurant_id = ?", restaurant.ID).
			Pluck("id", &menuIDs).Error; err != nil {
			return err
		}
		if len(menuIDs) > 0 {
			if err := tx.Where("menu_id IN ?", menuIDs).Delete(&model.Product{}).Error; err != nil {
				return err
			}
			if err := tx.Where("restaurant_id = ?", restaurant.ID).Delete(&model.Menu{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(restaurant).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not delete restaurant",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Restaurant deleted successfully",
	})
}

func (rc *RestaurantController) uniqueSlug(name string) string {
	base := slug.Make(name)
	candidate := base
	for i := 2; ; i++ {
		var count int64
		rc.db.Model(&model.Restaurant{}).Where("slug = ?", candidate).Count(&count)
		if count == 0 {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}
