package web

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const flashCookie = "flash"

// Flash categories, rendered as alert styles.
const (
	flashSuccess = "success"
	flashWarning = "warning"
	flashDanger  = "danger"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// setFlash queues a message for the next page view.
func setFlash(w http.ResponseWriter, category, message string) {
	data, _ := json.Marshal(Flash{Category: category, Message: message})
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash returns the queued message, if any, and clears it.
func popFlash(w http.ResponseWriter, r *http.Request) *Flash {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Path: "/", MaxAge: -1})

	data, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	var f Flash
	if err := json.Unmarshal(data, &f); err != nil || f.Message == "" {
		return nil
	}
	return &f
}

// redirectFlash queues a message and redirects with 303 See Other.
func redirectFlash(w http.ResponseWriter, r *http.Request, to, category, message string) {
	setFlash(w, category, message)
	http.Redirect(w, r, to, http.StatusSeeOther)
}
