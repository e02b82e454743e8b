package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tightship_backend/internal/model"
	"tightship_backend/pkg/utils/image"
	"tightship_backend/pkg/utils/jwt"
	"tightship_backend/pkg/utils/storage"
)

type UploadController struct {
	db    *gorm.DB
	store *storage.ObjectStore
	log   zerolog.Logger
}

func NewUploadController(db *gorm.DB, store *storage.ObjectStore, log zerolog.Logger) *UploadController {
	return &UploadController{db: db, store: store, log: log}
}

// UploadProductPhoto re-encodes the upload and stores it under the tenant's
// CDN path. A replaced photo is deleted best-effort.
func (uc *UploadController) UploadProductPhoto(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)
	productID := c.Params("product_id")

	var product model.Product
	if err := uc.db.Preload("Menu.Restaurant").Preload("Menu.Restaurant.Organization").
		Where("id = ? AND organization_id = ?", productID, claims.OrganizationID).
		First(&product).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Product not found",
		})
	}

	file, err := c.FormFile("photo")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No photo uploaded",
		})
	}

	body, contentType, err := image.Process(file)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	url, err := uc.store.UploadProductPhoto(
		c.Context(),
		body,
		contentType,
		product.Menu.Restaurant.Organization.Slug,
		product.Menu.Restaurant.Slug,
		file.Filename,
	)
	if err != nil {
		uc.log.Error().Err(err).Uint("organization_id", claims.OrganizationID).
			Str("operation", "upload_product_photo").Msg("could not upload photo")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not upload photo",
		})
	}

	oldURL := product.PhotoURL
	if err := uc.db.Model(&product).Update("photo_url", url).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not save photo URL",
		})
	}

	if oldURL != "" {
		if err := uc.store.Delete(c.Context(), oldURL); err != nil {
			uc.log.Warn().Err(err).Str("url", oldURL).Msg("could not delete replaced photo")
		}
	}

	return c.JSON(fiber.Map{
		"photo_url": url,
	})
}
