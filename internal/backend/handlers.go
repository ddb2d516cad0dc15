package backend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/jeffo777/input-right/internal/lead"
)

type createTenantRequest struct {
	ID            string `json:"id" validate:"required,max=64,excludes=_,excludesall= /"`
	BusinessName  string `json:"business_name" validate:"required,max=200"`
	ContactName   string `json:"contact_name"`
	PhoneNumber   string `json:"phone_number"`
	Email         string `json:"email" validate:"omitempty,email"`
	KnowledgeBase string `json:"knowledge_base"`
}

type createLeadRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Inquiry  string `json:"inquiry" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone"`
}

func (s *Server) createTenant(c *fiber.Ctx) error {
	var req createTenantRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}

	t, err := s.store.CreateTenant(c.UserContext(), Tenant{
		ID:            req.ID,
		BusinessName:  req.BusinessName,
		ContactName:   req.ContactName,
		PhoneNumber:   req.PhoneNumber,
		Email:         req.Email,
		KnowledgeBase: req.KnowledgeBase,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

func (s *Server) getTenant(c *fiber.Ctx) error {
	t, err := s.store.GetTenant(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(t)
}

func (s *Server) listLeads(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := s.store.GetTenant(c.UserContext(), id); err != nil {
		return err
	}
	leads, err := s.store.ListLeads(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(leads)
}

func (s *Server) createLead(c *fiber.Ctx) error {
	var req createLeadRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}

	rec, err := s.store.CreateLead(c.UserContext(), req.TenantID, lead.Draft{
		Name:    req.Name,
		Inquiry: req.Inquiry,
		Email:   req.Email,
		Phone:   req.Phone,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

// validationError is rendered as 422 with per-field details.
type validationError struct {
	details map[string]string
}

func (e *validationError) Error() string { return "validation failed" }

// bind parses the JSON body, trims strings and validates.
func (s *Server) bind(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	trimStrings(out)
	if err := s.validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		details := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			details[jsonName(fe)] = fmt.Sprintf("failed %q validation", fe.Tag())
		}
		return &validationError{details: details}
	}
	return nil
}

func trimStrings(v any) {
	switch r := v.(type) {
	case *createTenantRequest:
		r.ID = strings.TrimSpace(r.ID)
		r.BusinessName = strings.TrimSpace(r.BusinessName)
		r.Email = strings.TrimSpace(r.Email)
	case *createLeadRequest:
		r.TenantID = strings.TrimSpace(r.TenantID)
		r.Name = strings.TrimSpace(r.Name)
		r.Inquiry = strings.TrimSpace(r.Inquiry)
		r.Email = strings.TrimSpace(r.Email)
		r.Phone = strings.TrimSpace(r.Phone)
	case *tokenRequest:
		r.TenantID = strings.TrimSpace(r.TenantID)
		r.RoomName = strings.TrimSpace(r.RoomName)
	}
}

var fieldNames = map[string]string{
	"ID":            "id",
	"BusinessName":  "business_name",
	"Email":         "email",
	"TenantID":      "tenant_id",
	"Name":          "name",
	"Inquiry":       "inquiry",
	"RoomName":      "room_name",
	"KnowledgeBase": "knowledge_base",
}

func jsonName(fe validator.FieldError) string {
	if n, ok := fieldNames[fe.Field()]; ok {
		return n
	}
	return strings.ToLower(fe.Field())
}
