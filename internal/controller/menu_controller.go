package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tightship_backend/internal/model"
)

type MenuController struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewMenuController(db *gorm.DB, log zerolog.Logger) *MenuController {
	return &MenuController{db: db, log: log}
}

type MenuInput struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

// ListMenus serves menus for a restaurant already ownership-checked by
// middleware.
func (mc *MenuController) ListMenus(c *fiber.Ctx) error {
	restaurant := c.Locals("restaurant").(*model.Restaurant)

	var menus []model.Menu
	if err := mc.db.Where("restaurant_id = ?", restaurant.ID).
		Preload("Products").
		Find(&menus).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not fetch menus",
		})
	}

	return c.JSON(menus)
}

func (mc *MenuController) CreateMenu(c *fiber.Ctx) error {
	restaurant := c.Locals("restaurant").(*model.Restaurant)

	input := new(MenuInput)
	if err := c.BodyParser(input); err != nil || input.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input",
		})
	}

	menu := model.Menu{
		RestaurantID: restaurant.ID,
		Name:         input.Name,
		Description:  input.Description,
		Active:       true,
	}
	if input.Active != nil {
		menu.Active = *input.Active
	}

	if err := mc.db.Create(&menu).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not create menu",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(menu)
}

// ExportMenus streams every menu and product for a restaurant as CSV. The
// route is gated by the plan's csv_export capability.
func (mc *MenuController) ExportMenus(c *fiber.Ctx) error {
	restaurant := c.Locals("restaurant").(*model.Restaurant)

	var menus []model.Menu
	if err := mc.db.Where("restaurant_id = ?", restaurant.ID).
		Preload("Products").
		Find(&menus).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not fetch menus",
		})
	}

	return renderMenuCSV(c, *restaurant, menus)
}

func (mc *MenuController) UpdateMenu(c *fiber.Ctx) error {
	restaurant := c.Locals("restaurant").(*model.Restaurant)
	menuID := c.Params("menu_id")

	var menu model.Menu
	if err := mc.db.Where("id = ? AND restaurant_id = ?", menuID, restaurant.ID).
		First(&menu).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Menu not found",
		})
	}

	input := new(MenuInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input",
		})
	}

	if input.Name != "" {
		menu.Name = input.Name
	}
	if input.Description != "" {
		menu.Description = input.Description
	}
	if input.Active != nil {
		menu.Active = *input.Active
	}

	if err := mc.db.Save(&menu).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not update menu",
		})
	}

	return c.JSON(menu)
}

func (mc *MenuController) DeleteMenu(c *fiber.Ctx) error {
	restaurant := c.Locals("restaurant").(*model.Restaurant)
	menuID := c.Params("menu_id")

	var menu model.Menu
	if err := mc.db.Where("id = ? AND restaurant_id = ?", menuID, restaurant.ID).
		First(&menu).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Menu not found",
		})
	}

	err := mc.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("menu_id = ?", menu.ID).Delete(&model.Product{}).Error; err != nil {
			return err
		}
		return tx.Delete(&menu).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not delete menu",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Menu deleted successfully",
	})
}
