// Package portaltest runs an in-process imitation of the reservation portal
// for tests: login with csrf tokens, a per-month calendar and the json
// command endpoint.
package portaltest

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	Slug      = "sk_ba_panoramacity2"
	ArticleID = "273"

	FullMessage            = "Kapacita parkoviska je na tento deň naplnená."
	AlreadyReservedMessage = "Tento deň již bylo uživatelem rezervováno."
)

type Account struct {
	Password     string
	TicketID     string
	LongTicketID string
}

type reservation struct {
	plate string
	lot   int
}

type Portal struct {
	Server *httptest.Server

	mutex    sync.Mutex
	accounts map[string]Account
	sessions map[string]string
	// email -> date -> reservation
	reserved map[string]map[string]reservation
	full     map[string]bool
	nextLot  int
	counter  int

	requests map[string]int
	commands map[string]int
}

func New() *Portal {
	p := &Portal{
		accounts: map[string]Account{},
		sessions: map[string]string{},
		reserved: map[string]map[string]reservation{},
		full:     map[string]bool{},
		nextLot:  100,
		requests: map[string]int{},
		commands: map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/login/", p.count(p.handleLogin))
	mux.HandleFunc(fmt.Sprintf("/en/reserv_single/misc/%s/", Slug), p.count(p.handleCommand))
	mux.HandleFunc(fmt.Sprintf("/en/reserv_single/%s/", Slug), p.count(p.handleReserve))
	p.Server = httptest.NewServer(mux)
	return p
}

func (p *Portal) URL() string {
	return p.Server.URL
}

func (p *Portal) Close() {
	p.Server.Close()
}

func (p *Portal) AddAccount(email string, account Account) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.accounts[email] = account
}

// SetFull marks a date as having no free lot left.
func (p *Portal) SetFull(date string, full bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.full[date] = full
}

// Reserve puts a reservation in place as if made through the portal ui.
func (p *Portal) Reserve(email, date, plate string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.reserveLocked(email, date, plate)
}

func (p *Portal) reserveLocked(email, date, plate string) int {
	if p.reserved[email] == nil {
		p.reserved[email] = map[string]reservation{}
	}
	p.nextLot++
	p.reserved[email][date] = reservation{plate: plate, lot: p.nextLot}
	return p.nextLot
}

func (p *Portal) IsReserved(email, date string) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	_, ok := p.reserved[email][date]
	return ok
}

// ExpireSessions forgets every session cookie that was handed out.
func (p *Portal) ExpireSessions() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.sessions = map[string]string{}
}

// Requests is the total number of requests served.
func (p *Portal) Requests() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	total := 0
	for _, n := range p.requests {
		total += n
	}
	return total
}

// RequestsTo is the number of requests served for one path.
func (p *Portal) RequestsTo(path string) int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.requests[path]
}

// Commands is the number of misc posts received with the given cmd.
func (p *Portal) Commands(cmd string) int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.commands[cmd]
}

func (p *Portal) count(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.mutex.Lock()
		p.requests[r.URL.Path]++
		p.mutex.Unlock()
		handler(w, r)
	}
}

func (p *Portal) csrfToken(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie("csrftoken"); err == nil {
		return cookie.Value
	}
	p.mutex.Lock()
	p.counter++
	token := fmt.Sprintf("csrf%08d", p.counter)
	p.mutex.Unlock()
	http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: token, Path: "/"})
	return token
}

func (p *Portal) sessionEmail(r *http.Request) (string, bool) {
	cookie, err := r.Cookie("sessionid")
	if err != nil {
		return "", false
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	email, ok := p.sessions[cookie.Value]
	return email, ok
}

var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html><body>
<form method="post" action="/login/">
  <input type="hidden" name="csrfmiddlewaretoken" value="{{.}}">
  <input type="text" name="username">
  <input type="password" name="password">
</form>
</body></html>`))

func (p *Portal) handleLogin(w http.ResponseWriter, r *http.Request) {
	token := p.csrfToken(w, r)
	if r.Method == http.MethodGet {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		loginPage.Execute(w, token)
		return
	}

	r.ParseForm()
	email := r.PostForm.Get("username")

	p.mutex.Lock()
	account, ok := p.accounts[email]
	valid := ok &&
		account.Password == r.PostForm.Get("password") &&
		r.PostForm.Get("csrfmiddlewaretoken") == token
	var session string
	if valid {
		p.counter++
		session = fmt.Sprintf("sess%08d", p.counter)
		p.sessions[session] = email
	}
	p.mutex.Unlock()

	if !valid {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		loginPage.Execute(w, token)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: session, Path: "/", HttpOnly: true})
	next := r.PostForm.Get("next")
	if next == "" {
		next = "/"
	}
	http.Redirect(w, r, next, http.StatusFound)
}

var calendarPathRegex = regexp.MustCompile(fmt.Sprintf(`^/en/reserv_single/%s/(?:(\d+)/(?:(\d+)/(\d+)/)?)?$`, Slug))

type calendarDay struct {
	Date  string
	Day   int
	Class string
	Lot   int
}

type calendarPage struct {
	LongTicketID string
	ArticleID    template.JS
	CSRF         string
	Plate        string
	Days         []calendarDay
}

var calendarTemplate = template.Must(template.New("calendar").Parse(`<!DOCTYPE html>
<html><head>
<script>
  var ticket_id = "{{.LongTicketID}}";
  var article_id = {{.ArticleID}};
</script>
</head><body>
<form><input type="hidden" name="csrfmiddlewaretoken" value="{{.CSRF}}"></form>
<input type="hidden" name="car_id" value="{{.Plate}}">
<table class="calendar">
{{range .Days}}<td class="day {{.Class}}" data-date="{{.Date}}"{{if .Lot}} data-lot="{{.Lot}}"{{end}}>{{.Day}}</td>
{{end}}</table>
</body></html>`))

func (p *Portal) handleReserve(w http.ResponseWriter, r *http.Request) {
	email, ok := p.sessionEmail(r)
	if !ok {
		http.Redirect(w, r, "/login/?next="+r.URL.Path, http.StatusFound)
		return
	}

	groups := calendarPathRegex.FindStringSubmatch(r.URL.Path)
	if groups == nil {
		http.NotFound(w, r)
		return
	}

	p.mutex.Lock()
	account := p.accounts[email]
	p.mutex.Unlock()

	if groups[1] == "" {
		http.Redirect(w, r, fmt.Sprintf("/en/reserv_single/%s/%s/", Slug, account.TicketID), http.StatusFound)
		return
	}
	if groups[1] != account.TicketID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	now := time.Now()
	year, month := now.Year(), int(now.Month())
	if groups[2] != "" {
		year, _ = strconv.Atoi(groups[2])
		month, _ = strconv.Atoi(groups[3])
	}

	page := calendarPage{
		LongTicketID: account.LongTicketID,
		ArticleID:    template.JS(ArticleID),
		CSRF:         p.csrfToken(w, r),
	}

	p.mutex.Lock()
	last := time.Date(year, time.Month(month)+1, 0, 12, 0, 0, 0, time.UTC).Day()
	for day := 1; day <= last; day++ {
		date := fmt.Sprintf("%04d-%02d-%02d", year, month, day)
		entry := calendarDay{Date: date, Day: day, Class: "day-free-edit"}
		if res, ok := p.reserved[email][date]; ok {
			entry.Class = "day-reserved-edit"
			entry.Lot = res.lot
			page.Plate = res.plate
		} else if p.full[date] {
			entry.Class = "day-full-edit"
		}
		page.Days = append(page.Days, entry)
	}
	p.mutex.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	calendarTemplate.Execute(w, page)
}

func writeJson(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(value)
}

func (p *Portal) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.ParseForm()
	cmd := r.PostForm.Get("cmd")

	p.mutex.Lock()
	p.commands[cmd]++
	p.mutex.Unlock()

	email, ok := p.sessionEmail(r)
	if !ok {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		loginPage.Execute(w, p.csrfToken(w, r))
		return
	}
	if r.PostForm.Get("csrfmiddlewaretoken") == "" || r.Header.Get("X-CSRFToken") == "" {
		http.Error(w, "csrf verification failed", http.StatusForbidden)
		return
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	date := r.PostForm.Get("date")
	switch cmd {
	case "ADD":
		if _, ok := p.reserved[email][date]; ok {
			writeJson(w, map[string]any{"status": false, "error_message": AlreadyReservedMessage})
			return
		}
		if p.full[date] {
			writeJson(w, map[string]any{"status": false, "error_message": FullMessage})
			return
		}
		lot := p.reserveLocked(email, date, r.PostForm.Get("car_id"))
		writeJson(w, map[string]any{"status": true, "lot_id": lot})
	case "DEL":
		if _, ok := p.reserved[email][date]; !ok {
			writeJson(w, map[string]any{"status": false, "error": "Rezervácia neexistuje."})
			return
		}
		delete(p.reserved[email], date)
		writeJson(w, map[string]any{"status": true})
	case "REFRESH":
		year, _ := strconv.Atoi(r.PostForm.Get("year"))
		month, _ := strconv.Atoi(r.PostForm.Get("month"))
		prefix := fmt.Sprintf("%04d-%02d-", year, month)
		days := []int{}
		for date, full := range p.full {
			if !full || !strings.HasPrefix(date, prefix) {
				continue
			}
			day, _ := strconv.Atoi(date[len(prefix):])
			days = append(days, day)
		}
		sort.Ints(days)
		writeJson(w, map[string]any{"status": true, "full_days": days})
	default:
		writeJson(w, map[string]any{"status": false, "msg": "unknown command"})
	}
}
