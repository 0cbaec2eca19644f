package main

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	cookieName        = "vv_session"
	sessionTTL        = 24 * time.Hour
	defaultAddr       = ":3000"
	templateRoot      = "templates"
	minPasswordLength = 6
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	tmpl := parseTemplates()
	store, err := newConfiguredStore()
	if err != nil {
		log.Fatalf("configure store: %v", err)
	}

	addr := strings.TrimSpace(os.Getenv("ADDR"))
	if addr == "" {
		addr = defaultAddr
	}
	mux := newMux(store, tmpl)

	log.Printf("listening on http://localhost%s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func parseTemplates() *template.Template {
	return template.Must(template.New("root").ParseGlob(filepath.Join(templateRoot, "*.html")))
}

func devMode() bool {
	return os.Getenv("DEV_MODE") == "1"
}

func newMux(store *Store, tmpl *template.Template) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "Page not found"})
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		renderPage(w, tmpl, "index", map[string]any{"LoggedIn": sessionFromRequest(store, r) != nil})
	})

	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		renderPage(w, tmpl, "auth", nil)
	})

	mux.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		creds, err := readCredentials(r)
		if err != nil {
			writeAPIError(w, err)
			return
		}
		if err := validateRegistration(creds); err != nil {
			log.Printf("registration rejected for %q: %v", creds.Username, err)
			writeAPIError(w, err)
			return
		}
		if store.repo == nil {
			writeAPIError(w, storageErr("register", errNoDatabase))
			return
		}
		if _, err := store.repo.CreateUser(r.Context(), creds.Username, creds.Email, creds.Password); err != nil {
			writeAPIError(w, err)
			return
		}
		log.Printf("new user registered: %s", creds.Username)
		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"message": "Registration successful! You can now sign in.",
		})
	})

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		creds, err := readCredentials(r)
		if err != nil {
			writeAPIError(w, err)
			return
		}
		if creds.Username == "" || creds.Password == "" {
			writeAPIError(w, &ValidationError{Msg: "Username and password are required."})
			return
		}
		if store.repo == nil {
			writeAPIError(w, storageErr("login", errNoDatabase))
			return
		}
		user, err := store.repo.FindUserByUsername(r.Context(), creds.Username)
		if err != nil {
			writeAPIError(w, err)
			return
		}
		// A missing user and a wrong password produce the same response so
		// usernames cannot be enumerated.
		if user == nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(creds.Password)) != nil {
			log.Printf("failed login attempt for: %s", creds.Username)
			writeAPIError(w, &AuthenticationError{})
			return
		}

		sess := store.sessions.Create(user.ID, user.Username, time.Now().UTC())
		http.SetCookie(w, &http.Cookie{
			Name:     cookieName,
			Value:    sess.Token,
			Path:     "/",
			MaxAge:   int(sessionTTL.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		log.Printf("user logged in: %s", user.Username)
		http.Redirect(w, r, "/play", http.StatusSeeOther)
	})

	mux.HandleFunc("/play", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sess := sessionFromRequest(store, r)
		if sess == nil {
			http.Redirect(w, r, "/auth", http.StatusFound)
			return
		}
		welcome := store.sessions.ConsumeWelcome(sess.Token)

		store.mu.Lock()
		defer store.mu.Unlock()
		pp := ensureProgressLocked(store, sess.Identity())
		data := buildPlayDataLocked(store, pp, r.URL.Query().Get("scene"), sess.Username)
		data.Welcome = welcome
		renderPage(w, tmpl, "play", data)
	})

	mux.HandleFunc("/choice", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sess := sessionFromRequest(store, r)
		if sess == nil {
			http.Redirect(w, r, "/auth", http.StatusFound)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		sceneID := strings.TrimSpace(r.FormValue("scene"))
		optionIndex, err := strconv.Atoi(strings.TrimSpace(r.FormValue("option")))
		if err != nil {
			optionIndex = -1
		}

		store.mu.Lock()
		pp := ensureProgressLocked(store, sess.Identity())
		outcome, err := dispatchChoiceLocked(store, pp, sceneID, optionIndex)
		if err != nil {
			setToastLocked(store, pp.Key, "That choice isn't available.")
		} else {
			setToastLocked(store, pp.Key, outcome.Text)
		}
		store.mu.Unlock()

		http.Redirect(w, r, "/play?scene="+sceneID, http.StatusSeeOther)
	})

	mux.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sess := sessionFromRequest(store, r)
		if sess == nil {
			http.Redirect(w, r, "/auth", http.StatusFound)
			return
		}
		rows := []UserTraitsRow{}
		if store.repo != nil {
			var err error
			rows, err = store.repo.AllTraits(r.Context())
			if err != nil {
				log.Printf("dashboard traits query failed: %v", err)
				rows = []UserTraitsRow{}
			}
		}
		renderPage(w, tmpl, "dashboard", buildDashboardData(sess.Username, rows))
	})

	mux.HandleFunc("/api/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sess := sessionFromRequest(store, r)
		if sess == nil {
			writeAPIError(w, &AuthorizationError{})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user": map[string]any{
				"id":        sess.UserID,
				"username":  sess.Username,
				"loginTime": sess.LoginTime.Format(time.RFC3339),
			},
			"showWelcome": store.sessions.ConsumeWelcome(sess.Token),
		})
	})

	mux.HandleFunc("/api/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			store.sessions.Destroy(c.Value)
		}
		http.SetCookie(w, &http.Cookie{
			Name:     cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		log.Printf("user logged out")
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})

	mux.HandleFunc("/api/traits/save", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sess := sessionFromRequest(store, r)
		if sess == nil {
			writeAPIError(w, &AuthorizationError{})
			return
		}
		var body struct {
			Traits *TraitVector `json:"traits"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Traits == nil {
			writeAPIError(w, &ValidationError{Msg: "Traits data required"})
			return
		}

		store.mu.Lock()
		pp := ensureProgressLocked(store, sess.Identity())
		pp.Traits = body.Traits.Normalized()
		persistProgressLocked(store, pp)
		store.mu.Unlock()

		log.Printf("traits saved for user: %s", sess.Username)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})

	mux.HandleFunc("/api/traits/get", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sess := sessionFromRequest(store, r)
		if sess == nil {
			writeAPIError(w, &AuthorizationError{})
			return
		}
		if store.repo != nil {
			tv, err := store.repo.GetTraits(r.Context(), sess.UserID)
			if err != nil {
				writeAPIError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"traits": tv})
			return
		}
		store.mu.Lock()
		tv := ensureProgressLocked(store, sess.Identity()).Traits
		store.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"traits": tv})
	})

	mux.HandleFunc("/api/traits/all", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sess := sessionFromRequest(store, r)
		if sess == nil {
			writeAPIError(w, &AuthorizationError{})
			return
		}
		rows := []UserTraitsRow{}
		if store.repo != nil {
			var err error
			rows, err = store.repo.AllTraits(r.Context())
			if err != nil {
				writeAPIError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": rows})
	})

	mux.HandleFunc("/api/progress/save", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var rec ProgressRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			writeAPIError(w, &ValidationError{Msg: "Progress data required"})
			return
		}
		identity := sessionFromRequest(store, r).Identity()

		store.mu.Lock()
		pp := ensureProgressLocked(store, identity)
		pp.Traits = rec.Traits.Normalized()
		pp.Tasks = rec.CompletedTasks
		if pp.Tasks == nil {
			pp.Tasks = TaskSet{}
		}
		persistProgressLocked(store, pp)
		store.mu.Unlock()

		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})

	mux.HandleFunc("/api/progress/get", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		identity := sessionFromRequest(store, r).Identity()

		store.mu.Lock()
		pp := ensureProgressLocked(store, identity)
		rec := ProgressRecord{Traits: pp.Traits, CompletedTasks: pp.Tasks.Copy()}
		store.mu.Unlock()

		writeJSON(w, http.StatusOK, rec)
	})

	return mux
}

var errNoDatabase = fmt.Errorf("no database configured")

type credentials struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// readCredentials accepts either a JSON body or an HTML form post, the two
// ways the auth page submits.
func readCredentials(r *http.Request) (credentials, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var c credentials
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			return credentials{}, &ValidationError{Msg: "Invalid JSON format"}
		}
		c.Username = strings.TrimSpace(c.Username)
		c.Email = strings.TrimSpace(c.Email)
		return c, nil
	}
	if err := r.ParseForm(); err != nil {
		return credentials{}, &ValidationError{Msg: "Invalid form data"}
	}
	return credentials{
		Username: strings.TrimSpace(r.FormValue("username")),
		Email:    strings.TrimSpace(r.FormValue("email")),
		Password: r.FormValue("password"),
	}, nil
}

func validateRegistration(c credentials) error {
	if c.Username == "" || c.Email == "" || c.Password == "" {
		return &ValidationError{Msg: "All username, email and password are required."}
	}
	if !emailPattern.MatchString(c.Email) {
		return &ValidationError{Msg: "Invalid email format."}
	}
	if len(c.Password) < minPasswordLength {
		return &ValidationError{Msg: "Password must be at least 6 characters long."}
	}
	return nil
}

func sessionFromRequest(store *Store, r *http.Request) *Session {
	c, err := r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	return store.sessions.Lookup(c.Value, time.Now().UTC())
}

type SceneLink struct {
	ID        string
	Name      string
	Completed bool
	Current   bool
}

type OptionView struct {
	Index int
	Text  string
}

type PlayData struct {
	Username      string
	Welcome       bool
	Toast         string
	Score         int
	Traits        TraitVector
	Scenes        []SceneLink
	SceneID       string
	SceneName     string
	Prompt        string
	Options       []OptionView
	Completed     bool
	CompletedNote string
}

// buildPlayDataLocked assembles the play page: the scene list, the selected
// scene's dilemma (or its completed note) and the current trait readout.
// With no explicit scene it picks the first unresolved one.
func buildPlayDataLocked(store *Store, pp *PlayerProgress, sceneID, username string) PlayData {
	if dilemmaForScene(sceneID) == nil {
		sceneID = sceneOrder[0]
		for _, id := range sceneOrder {
			if !pp.Tasks.Completed(dilemmas[id].TaskID) {
				sceneID = id
				break
			}
		}
	}
	d := dilemmas[sceneID]

	scenes := make([]SceneLink, 0, len(sceneOrder))
	for _, id := range sceneOrder {
		scenes = append(scenes, SceneLink{
			ID:        id,
			Name:      dilemmas[id].SceneName,
			Completed: pp.Tasks.Completed(dilemmas[id].TaskID),
			Current:   id == sceneID,
		})
	}

	data := PlayData{
		Username:  username,
		Toast:     popToastLocked(store, pp.Key),
		Score:     deriveScore(pp.Traits),
		Traits:    pp.Traits,
		Scenes:    scenes,
		SceneID:   sceneID,
		SceneName: d.SceneName,
		Prompt:    d.Prompt,
	}
	if pp.Tasks.Completed(d.TaskID) {
		data.Completed = true
		data.CompletedNote = d.CompletedNote
		return data
	}
	for i, c := range d.Choices {
		data.Options = append(data.Options, OptionView{Index: i, Text: c.Text})
	}
	return data
}

type DashboardRow struct {
	Username  string
	Traits    TraitVector
	Score     int
	UpdatedAt string
}

type DashboardData struct {
	Username string
	Rows     []DashboardRow
}

func buildDashboardData(username string, rows []UserTraitsRow) DashboardData {
	data := DashboardData{Username: username}
	for _, row := range rows {
		data.Rows = append(data.Rows, DashboardRow{
			Username:  row.Username,
			Traits:    row.TraitVector,
			Score:     deriveScore(row.TraitVector),
			UpdatedAt: row.UpdatedAt.UTC().Format("2006-01-02 15:04"),
		})
	}
	return data
}

func renderPage(w http.ResponseWriter, tmpl *template.Template, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json response: %v", err)
	}
}

// writeAPIError maps the error taxonomy onto a JSON response. Storage
// detail stays in the server log; clients see a generic message unless dev
// mode is enabled.
func writeAPIError(w http.ResponseWriter, err error) {
	status := httpStatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("server error: %v", err)
		msg = "Database error. Please try again later."
		if devMode() {
			msg = err.Error()
		}
	}
	writeJSON(w, status, map[string]any{"error": msg})
}
