package i18n

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the language context.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Languages lists the available languages and the active one.
func (h *Handler) Languages(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"current": h.svc.Current(), "available": h.svc.Available(), "rtl": h.svc.IsRTL()})
}

type changeRequest struct {
	Code string `json:"code"`
}

// Change switches the active language.
func (h *Handler) Change(c *fiber.Ctx) error {
	var req changeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.ChangeLanguage(c.UserContext(), req.Code); err != nil {
		return err
	}
	lang := h.svc.Current()
	return c.JSON(fiber.Map{
		"current": lang,
		"message": h.svc.T("settings.languageChanged", map[string]any{"language": lang.NativeName}),
	})
}

// Translate resolves ?key= in the active language. Other query parameters
// are used as interpolation values.
func (h *Handler) Translate(c *fiber.Ctx) error {
	key := c.Query("key")
	if key == "" {
		return fiber.NewError(http.StatusBadRequest, "key is required")
	}
	vars := map[string]any{}
	for k, v := range c.Queries() {
		if k != "key" {
			vars[k] = v
		}
	}
	return c.JSON(fiber.Map{"key": key, "language": h.svc.Current().Code, "text": h.svc.T(key, vars)})
}
