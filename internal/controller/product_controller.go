package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tightship_backend/internal/model"
	"tightship_backend/pkg/usage"
	"tightship_backend/pkg/utils/jwt"
)

type ProductController struct {
	db    *gorm.DB
	usage *usage.Service
	log   zerolog.Logger
}

func NewProductController(db *gorm.DB, usageSvc *usage.Service, log zerolog.Logger) *ProductController {
	return &ProductController{db: db, usage: usageSvc, log: log}
}

type ProductInput struct {
	Name        string   `json:"name" validate:"required"`
	SKU         string   `json:"sku"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Price       *float64 `json:"price" validate:"required"`
	TaxRate     *float64 `json:"tax_rate"`
	Available   *bool    `json:"available"`
}

func (pc *ProductController) ListProducts(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)
	restaurant := c.Locals("restaurant").(*model.Restaurant)
	menuID := c.Params("menu_id")

	var menu model.Menu
	if err := pc.db.Where("id = ? AND restaurant_id = ?", menuID, restaurant.ID).
		First(&menu).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Menu not found",
		})
	}

	var products []model.Product
	if err := pc.db.Where("menu_id = ? AND organization_id = ?", menu.ID, claims.OrganizationID).
		Find(&products).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not fetch products",
		})
	}

	return c.JSON(products)
}

// CreateProduct is the limit-gated write: the product count and the insert
// share one transaction, so the plan ceiling holds even under concurrent
// creates.
func (pc *ProductController) CreateProduct(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)
	restaurant := c.Locals("restaurant").(*model.Restaurant)
	menuID := c.Params("menu_id")

	var menu model.Menu
	if err := pc.db.Where("id = ? AND restaurant_id = ?", menuID, restaurant.ID).
		First(&menu).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Menu not found",
		})
	}

	input := new(ProductInput)
	if err := c.BodyParser(input); err != nil || input.Name == "" || input.Price == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input: name and price are required",
		})
	}
	if *input.Price < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Price must not be negative",
		})
	}

	product := model.Product{
		OrganizationID: claims.OrganizationID,
		MenuID:         menu.ID,
		Name:           input.Name,
		SKU:            input.SKU,
		Description:    input.Description,
		Category:       input.Category,
		Price:          *input.Price,
		Available:      true,
	}
	if input.TaxRate != nil {
		product.TaxRate = *input.TaxRate
	}
	if input.Available != nil {
		product.Available = *input.Available
	}

	err := pc.usage.CheckAndReserve(c.Context(), claims.OrganizationID, usage.ResourceProducts, func(tx *gorm.DB) error {
		return tx.Create(&product).Error
	})
	if err != nil {
		var limitErr *usage.LimitExceededError
		if errors.As(err, &limitErr) {
			return c.Status(fiber.StatusForbidden).JSON(limitErr)
		}
		pc.log.Error().Err(err).Uint("organization_id", claims.OrganizationID).
			Str("operation", "create_product").Msg("could not create product")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not create product",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(product)
}

func (pc *ProductController) UpdateProduct(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)
	productID := c.Params("product_id")

	var product model.Product
	if err := pc.db.Where("id = ? AND organization_id = ?", productID, claims.OrganizationID).
		First(&product).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Product not found",
		})
	}

	input := new(ProductInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input",
		})
	}

	if input.Name != "" {
		product.Name = input.Name
	}
	if input.SKU != "" {
		product.SKU = input.SKU
	}
	if input.Description != "" {
		product.Description = input.Description
	}
	if input.Category != "" {
		product.Category = input.Category
	}
	if input.Price != nil {
		if *input.Price < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Price must not be negative",
			})
		}
		product.Price = *input.Price
	}
	if input.TaxRate != nil {
		product.TaxRate = *input.TaxRate
	}
	if input.Available != nil {
		product.Available = *input.Available
	}

	if err := pc.db.Save(&product).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not update product",
		})
	}

	return c.JSON(product)
}

func (pc *ProductController) DeleteProduct(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)
	productID := c.Params("product_id")

	var product model.Product
	if err := pc.db.Where("id = ? AND organization_id = ?", productID, claims.OrganizationID).
		First(&product).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Product not found",
		})
	}

	if err := pc.db.Delete(&product).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not delete product",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Product deleted successfully",
	})
}
