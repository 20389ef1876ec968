package auth

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/crazy-cooker/crazy_cooker/internal/app"
	"github.com/crazy-cooker/crazy_cooker/internal/apperror"
	"github.com/crazy-cooker/crazy_cooker/internal/authflow"
	"github.com/crazy-cooker/crazy_cooker/internal/contact"
	"github.com/crazy-cooker/crazy_cooker/internal/identity"
	"github.com/crazy-cooker/crazy_cooker/internal/verify"
)

// Handler exposes the auth form, the session and the verification screen.
type Handler struct {
	app *app.App
}

func NewHandler(a *app.App) *Handler {
	return &Handler{app: a}
}

type formRequest struct {
	Input    string `json:"input"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Status string         `json:"status"`
	Route  string         `json:"route"`
	User   *identity.User `json:"user,omitempty"`
}

// Route returns the root navigation branch.
func (h *Handler) Route(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"route": h.app.Route()})
}

// Session returns the cached session snapshot.
func (h *Handler) Session(c *fiber.Ctx) error {
	state := h.app.Session.Snapshot()
	return c.JSON(sessionResponse{Status: string(state.Status()), Route: string(h.app.Route()), User: state.User})
}

// Token returns the backend ID token of the signed-in user.
func (h *Handler) Token(c *fiber.Ctx) error {
	token, err := h.app.Session.IDToken(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"id_token": token})
}

// Classify reports the kind of the typed contact.
func (h *Handler) Classify(c *fiber.Ctx) error {
	var req formRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	kind := contact.Classify(req.Input)
	return c.JSON(fiber.Map{"kind": kind.String(), "display": contact.Mask(req.Input, kind)})
}

// View renders the auth form for the current input.
func (h *Handler) View(c *fiber.Ctx) error {
	var req formRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(h.app.AuthView(req.Input, req.Password))
}

type modeRequest struct {
	Mode string `json:"mode"`
}

// Mode toggles sign-in/sign-up, or sets it when a mode is given.
func (h *Handler) Mode(c *fiber.Ctx) error {
	var req modeRequest
	_ = c.BodyParser(&req)
	switch req.Mode {
	case "":
		h.app.Auth.ToggleMode()
	case authflow.ModeSignIn.String():
		h.app.Auth.SetMode(authflow.ModeSignIn)
	case authflow.ModeSignUp.String():
		h.app.Auth.SetMode(authflow.ModeSignUp)
	default:
		return apperror.Validation("", "mode must be sign_in or sign_up")
	}
	return c.JSON(fiber.Map{"mode": h.app.Auth.Mode().String()})
}

type submitResponse struct {
	Kind         string       `json:"kind"`
	Verification *verify.View `json:"verification,omitempty"`
}

// Submit runs the primary action of the auth form.
func (h *Handler) Submit(c *fiber.Ctx) error {
	var req formRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	handoff, err := h.app.Submit(c.UserContext(), req.Input, req.Password)
	if err != nil {
		return err
	}
	resp := submitResponse{Kind: handoff.Kind.String()}
	if handoff.Handle != "" {
		if screen, err := h.app.Verification(); err == nil {
			v := screen.View()
			resp.Verification = &v
		}
		return c.Status(http.StatusAccepted).JSON(resp)
	}
	return c.Status(http.StatusOK).JSON(resp)
}

// Logout signs the current user out.
func (h *Handler) Logout(c *fiber.Ctx) error {
	if err := h.app.Session.Logout(c.UserContext()); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

// PasswordReset sends a reset email.
func (h *Handler) PasswordReset(c *fiber.Ctx) error {
	var req passwordResetRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if !contact.IsEmail(req.Email) {
		return apperror.Validation("auth.enterEmail", "a valid email is required")
	}
	if err := h.app.Session.ResetPassword(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{
		"message": h.app.T("auth.passwordResetSent", map[string]any{"email": req.Email}),
	})
}

// EmailVerification sends a verification email to the signed-in user.
func (h *Handler) EmailVerification(c *fiber.Ctx) error {
	if err := h.app.Session.SendVerificationEmail(c.UserContext()); err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"message": h.app.T("auth.verificationEmailSent", nil)})
}

// Verification returns the mounted verification screen.
func (h *Handler) Verification(c *fiber.Ctx) error {
	screen, err := h.app.Verification()
	if err != nil {
		return err
	}
	return c.JSON(screen.View())
}

type cellRequest struct {
	Digit string `json:"digit"`
}

// EnterDigit stores a digit in the cell named by :index.
func (h *Handler) EnterDigit(c *fiber.Ctx) error {
	screen, index, err := h.cell(c)
	if err != nil {
		return err
	}
	var req cellRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := screen.Enter(index, req.Digit); err != nil {
		return err
	}
	return c.JSON(screen.View())
}

// Backspace handles the backspace key in the cell named by :index.
func (h *Handler) Backspace(c *fiber.Ctx) error {
	screen, index, err := h.cell(c)
	if err != nil {
		return err
	}
	if err := screen.Backspace(index); err != nil {
		return err
	}
	return c.JSON(screen.View())
}

func (h *Handler) cell(c *fiber.Ctx) (*verify.Screen, int, error) {
	screen, err := h.app.Verification()
	if err != nil {
		return nil, 0, err
	}
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return nil, 0, apperror.Validation("", "cell index must be a number")
	}
	return screen, index, nil
}

// Confirm verifies the entered code.
func (h *Handler) Confirm(c *fiber.Ctx) error {
	if err := h.app.ConfirmCode(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": h.app.T("auth.codeVerified", nil), "route": h.app.Route()})
}

// Resend requests a new code once the countdown has elapsed.
func (h *Handler) Resend(c *fiber.Ctx) error {
	screen, err := h.app.Verification()
	if err != nil {
		return err
	}
	if err := screen.Resend(c.UserContext()); err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(screen.View())
}

// Dismiss unmounts the verification screen.
func (h *Handler) Dismiss(c *fiber.Ctx) error {
	h.app.Unmount()
	return c.SendStatus(http.StatusNoContent)
}
