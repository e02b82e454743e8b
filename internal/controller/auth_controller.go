package controller

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"tightship_backend/internal/model"
	"tightship_backend/pkg/email"
	"tightship_backend/pkg/utils/jwt"
)

type AuthController struct {
	db     *gorm.DB
	mailer *email.Service
	log    zerolog.Logger
}

func NewAuthController(db *gorm.DB, mailer *email.Service, log zerolog.Logger) *AuthController {
	return &AuthController{db: db, mailer: mailer, log: log}
}

type RegisterInput struct {
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required,min=6"`
	OrganizationName string `json:"organization_name" validate:"required"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register creates the organization, its owner, and the FREE/TRIALING
// subscription in one transaction. Every organization has a subscription row
// from the moment it exists.
func (ac *AuthController) Register(c *fiber.Ctx) error {
	input := new(RegisterInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input",
		})
	}
	if input.Email == "" || input.Password == "" || input.OrganizationName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "email, password and organization_name are required",
		})
	}

	var existingUser model.User
	if err := ac.db.Where("email = ?", input.Email).First(&existingUser).Error; err == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Email already exists",
		})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not hash password",
		})
	}

	var freePlan model.Plan
	if err := ac.db.Where("tier = ?", "FREE").First(&freePlan).Error; err != nil {
		ac.log.Error().Err(err).Msg("free plan row missing, did seeding run?")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not create organization",
		})
	}

	org := model.Organization{
		Name:   input.OrganizationName,
		Slug:   ac.uniqueOrgSlug(input.OrganizationName),
		APIKey: uuid.New().String(),
	}
	user := model.User{
		Email:    input.Email,
		Password: string(hashedPassword),
		Role:     "owner",
	}

	err = ac.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&org).Error; err != nil {
			return err
		}
		user.OrganizationID = org.ID
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		sub := model.Subscription{
			OrganizationID: org.ID,
			PlanID:         freePlan.ID,
			Status:         model.StatusTrialing,
		}
		return tx.Create(&sub).Error
	})
	if err != nil {
		ac.log.Error().Err(err).Str("operation", "register").Msg("could not create organization")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not create organization",
		})
	}

	if ac.mailer != nil {
		if err := ac.mailer.SendWelcomeEmail(user.Email, org.Name); err != nil {
			ac.log.Error().Err(err).Msg("could not send welcome email")
		}
	}

	token, err := jwt.GenerateToken(user.ID, org.ID, user.Email)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not generate token",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Registration successful",
		"token":   token,
		"user":    user.GetPublicProfile(),
	})
}

func (ac *AuthController) Login(c *fiber.Ctx) error {
	input := new(LoginInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input",
		})
	}

	var user model.User
	if err := ac.db.Where("email = ?", input.Email).First(&user).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	token, err := jwt.GenerateToken(user.ID, user.OrganizationID, user.Email)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not generate token",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Login successful",
		"token":   token,
		"user":    user.GetPublicProfile(),
	})
}

func (ac *AuthController) GetMe(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	var user model.User
	if err := ac.db.Preload("Organization").First(&user, claims.UserID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	return c.JSON(fiber.Map{
		"user":         user.GetPublicProfile(),
		"organization": user.Organization,
	})
}

func (ac *AuthController) uniqueOrgSlug(name string) string {
	base := slug.Make(name)
	candidate := base
	for i := 2; ; i++ {
		var count int64
		ac.db.Model(&model.Organization{}).Where("slug = ?", candidate).Count(&count)
		if count == 0 {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}
