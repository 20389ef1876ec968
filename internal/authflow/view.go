package authflow

import (
	"github.com/crazy-cooker/crazy_cooker/internal/contact"
)

// Translate resolves a catalog key.
type Translate func(key string, vars map[string]any) string

// View is the rendered state of the form in the active language.
type View struct {
	Mode         string `json:"mode"`
	Kind         string `json:"kind"`
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle"`
	Placeholder  string `json:"placeholder"`
	ShowPassword bool   `json:"show_password"`
	Hint         string `json:"hint,omitempty"`
	SubmitLabel  string `json:"submit_label"`
	ToggleLabel  string `json:"toggle_label"`
	Icon         string `json:"icon"`
	CanSubmit    bool   `json:"can_submit"`
	InFlight     bool   `json:"in_flight"`
	Terms        string `json:"terms"`
}

// View builds the view model for the current input.
func (s *Screen) View(input, password string, t Translate) View {
	s.mu.Lock()
	mode, inFlight := s.mode, s.inFlight
	s.mu.Unlock()

	kind := contact.Classify(input)
	v := View{
		Mode:         mode.String(),
		Kind:         kind.String(),
		Title:        t("auth.welcome", nil),
		ShowPassword: kind == contact.KindEmail,
		Icon:         "phone.fill",
		InFlight:     inFlight,
		CanSubmit:    !inFlight && canSubmit(input, password),
		Terms:        t("auth.termsOfUse", nil),
	}

	if mode == ModeSignUp {
		v.Subtitle = t("auth.createAccountToSave", nil)
		v.ToggleLabel = t("auth.alreadyHaveAccount", nil)
	} else {
		v.Subtitle = t("auth.signInToAccount", nil)
		v.ToggleLabel = t("auth.dontHaveAccount", nil)
	}

	switch kind {
	case contact.KindEmail:
		v.Placeholder = t("auth.enterEmail", nil)
		v.Hint = t("auth.emailAuth", nil)
		v.Icon = "envelope.fill"
	case contact.KindPhone:
		v.Placeholder = t("auth.enterPhone", nil)
		v.Hint = t("auth.phoneAuth", nil)
	default:
		v.Placeholder = t("auth.pleaseEnterEmailOrPhone", nil)
	}

	switch {
	case inFlight && kind == contact.KindPhone:
		v.SubmitLabel = t("auth.sending", nil)
	case inFlight:
		v.SubmitLabel = t("auth.signingIn", nil)
	case kind == contact.KindPhone:
		v.SubmitLabel = t("auth.resendCode", nil)
	case mode == ModeSignUp:
		v.SubmitLabel = t("auth.signUp", nil)
	default:
		v.SubmitLabel = t("auth.signIn", nil)
	}
	return v
}
