package utils

import "github.com/gofiber/fiber/v3"

// SuccessResponse sends a standardized success response
func SuccessResponse(c fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// CreatedResponse sends a 201 with the created record
func CreatedResponse(c fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// PaginatedResponse sends a limit/offset page of results
func PaginatedResponse(c fiber.Ctx, data interface{}, limit, offset, total int) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
		"pagination": fiber.Map{
			"limit":    limit,
			"offset":   offset,
			"total":    total,
			"has_more": offset+limit < total,
		},
	})
}
