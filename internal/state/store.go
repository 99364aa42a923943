package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oliveapp/olive-agents/internal/idgen"
)

// Store is the data-access handle the agents read user data through.
type Store struct {
	db *DB
}

func NewStore(db *DB) *Store {
	return &Store{db: db}
}

type Task struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	CoupleID    string     `json:"couple_id,omitempty"`
	Summary     string     `json:"summary"`
	Category    string     `json:"category,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	Completed   bool       `json:"completed"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type Couple struct {
	ID        string    `json:"id"`
	PartnerA  string    `json:"partner_a"`
	PartnerB  string    `json:"partner_b,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Partner returns the other member of the couple, or "" if userID is not a
// member or the couple has no second partner yet.
func (c Couple) Partner(userID string) string {
	switch userID {
	case c.PartnerA:
		return c.PartnerB
	case c.PartnerB:
		return c.PartnerA
	default:
		return ""
	}
}

type Profile struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
}

type HealthReading struct {
	UserID         string    `json:"user_id"`
	Day            time.Time `json:"day"`
	ReadinessScore *float64  `json:"readiness_score,omitempty"`
	SleepScore     *float64  `json:"sleep_score,omitempty"`
	StressScore    *float64  `json:"stress_score,omitempty"`
	SleepHours     *float64  `json:"sleep_hours,omitempty"`
	HRV            *float64  `json:"hrv,omitempty"`
}

type ImportantDate struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	CoupleID string    `json:"couple_id,omitempty"`
	Title    string    `json:"title"`
	Kind     string    `json:"kind,omitempty"`
	Date     time.Time `json:"date"`
}

type Memory struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Store) CreateTask(ctx context.Context, task Task) (Task, error) {
	if strings.TrimSpace(task.UserID) == "" {
		return Task{}, fmt.Errorf("user_id is required")
	}
	if strings.TrimSpace(task.Summary) == "" {
		return Task{}, fmt.Errorf("summary is required")
	}
	if task.ID == "" {
		task.ID = idgen.New()
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = task.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, user_id, couple_id, summary, category, priority, completed, due_date, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.UserID, NullString(task.CoupleID), task.Summary, NullString(task.Category), NullString(task.Priority),
		BoolInt(task.Completed), formatNullTime(task.DueDate), FormatTime(task.CreatedAt), FormatTime(task.UpdatedAt), formatNullTime(task.CompletedAt))
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

// ListTasks returns every task owned by the user, oldest first.
func (s *Store) ListTasks(ctx context.Context, userID string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, couple_id, summary, category, priority, completed, due_date, created_at, updated_at, completed_at
		FROM tasks WHERE user_id = ? ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var task Task
		var coupleID, category, priority, dueDate, completedAt sql.NullString
		var createdAtStr, updatedAtStr string
		var completed int
		if err := rows.Scan(&task.ID, &task.UserID, &coupleID, &task.Summary, &category, &priority, &completed, &dueDate, &createdAtStr, &updatedAtStr, &completedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		task.CoupleID = coupleID.String
		task.Category = category.String
		task.Priority = priority.String
		task.Completed = completed != 0
		task.DueDate = parseNullTime(dueDate)
		task.CreatedAt = ParseTime(createdAtStr)
		task.UpdatedAt = ParseTime(updatedAtStr)
		task.CompletedAt = parseNullTime(completedAt)
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

func (s *Store) CreateCouple(ctx context.Context, partnerA, partnerB string) (Couple, error) {
	if partnerA == "" {
		return Couple{}, fmt.Errorf("partner_a is required")
	}
	couple := Couple{ID: idgen.New(), PartnerA: partnerA, PartnerB: partnerB, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx, `INSERT INTO couples (id, partner_a, partner_b, created_at) VALUES (?, ?, ?, ?)`,
		couple.ID, couple.PartnerA, NullString(couple.PartnerB), FormatTime(couple.CreatedAt))
	if err != nil {
		return Couple{}, fmt.Errorf("insert couple: %w", err)
	}
	return couple, nil
}

// CoupleForUser resolves the couple the user belongs to. When coupleID is
// set it must also contain the user.
func (s *Store) CoupleForUser(ctx context.Context, userID, coupleID string) (Couple, bool, error) {
	query := `SELECT id, partner_a, partner_b, created_at FROM couples WHERE (partner_a = ? OR partner_b = ?)`
	args := []any{userID, userID}
	if coupleID != "" {
		query += ` AND id = ?`
		args = append(args, coupleID)
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	var couple Couple
	var partnerB sql.NullString
	var createdAtStr string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&couple.ID, &couple.PartnerA, &partnerB, &createdAtStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Couple{}, false, nil
		}
		return Couple{}, false, fmt.Errorf("load couple: %w", err)
	}
	couple.PartnerB = partnerB.String
	couple.CreatedAt = ParseTime(createdAtStr)
	return couple, true, nil
}

func (s *Store) UpsertProfile(ctx context.Context, p Profile) error {
	if p.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, display_name, phone_number, timezone) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET display_name = excluded.display_name, phone_number = excluded.phone_number, timezone = excluded.timezone
	`, p.UserID, NullString(p.DisplayName), NullString(p.PhoneNumber), NullString(p.Timezone))
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (s *Store) Profile(ctx context.Context, userID string) (Profile, bool, error) {
	var p Profile
	var name, phone, tz sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT user_id, display_name, phone_number, timezone FROM profiles WHERE user_id = ?`, userID).
		Scan(&p.UserID, &name, &phone, &tz)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{UserID: userID}, false, nil
		}
		return Profile{}, false, fmt.Errorf("load profile: %w", err)
	}
	p.DisplayName = name.String
	p.PhoneNumber = phone.String
	p.Timezone = tz.String
	return p, true, nil
}

func (s *Store) AddConnection(ctx context.Context, userID, provider string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connections (user_id, provider, connected_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, provider) DO NOTHING
	`, userID, strings.ToLower(provider), FormatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("insert connection: %w", err)
	}
	return nil
}

func (s *Store) HasConnection(ctx context.Context, userID, provider string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM connections WHERE user_id = ? AND provider = ?`,
		userID, strings.ToLower(provider)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("load connection: %w", err)
	}
	return n > 0, nil
}

func (s *Store) PutHealthReading(ctx context.Context, r HealthReading) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO health_readings (user_id, day, readiness_score, sleep_score, stress_score, sleep_hours, hrv)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, day) DO UPDATE SET
		  readiness_score = excluded.readiness_score,
		  sleep_score = excluded.sleep_score,
		  stress_score = excluded.stress_score,
		  sleep_hours = excluded.sleep_hours,
		  hrv = excluded.hrv
	`, r.UserID, r.Day.Format(DayLayout), nullFloat(r.ReadinessScore), nullFloat(r.SleepScore), nullFloat(r.StressScore), nullFloat(r.SleepHours), nullFloat(r.HRV))
	if err != nil {
		return fmt.Errorf("upsert health reading: %w", err)
	}
	return nil
}

// HealthReadings returns readings on or after since, newest first.
func (s *Store) HealthReadings(ctx context.Context, userID string, since time.Time) ([]HealthReading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, day, readiness_score, sleep_score, stress_score, sleep_hours, hrv
		FROM health_readings WHERE user_id = ? AND day >= ? ORDER BY day DESC
	`, userID, since.Format(DayLayout))
	if err != nil {
		return nil, fmt.Errorf("list health readings: %w", err)
	}
	defer rows.Close()

	var out []HealthReading
	for rows.Next() {
		var r HealthReading
		var day string
		var readiness, sleep, stress, hours, hrv sql.NullFloat64
		if err := rows.Scan(&r.UserID, &day, &readiness, &sleep, &stress, &hours, &hrv); err != nil {
			return nil, fmt.Errorf("scan health reading: %w", err)
		}
		r.Day, _ = time.Parse(DayLayout, day)
		r.ReadinessScore = parseNullFloat(readiness)
		r.SleepScore = parseNullFloat(sleep)
		r.StressScore = parseNullFloat(stress)
		r.SleepHours = parseNullFloat(hours)
		r.HRV = parseNullFloat(hrv)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate health readings: %w", err)
	}
	return out, nil
}

func (s *Store) AddImportantDate(ctx context.Context, d ImportantDate) (ImportantDate, error) {
	if d.UserID == "" || strings.TrimSpace(d.Title) == "" {
		return ImportantDate{}, fmt.Errorf("user_id and title are required")
	}
	if d.ID == "" {
		d.ID = idgen.New()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO important_dates (id, user_id, couple_id, title, kind, date) VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, NullString(d.CoupleID), d.Title, NullString(d.Kind), d.Date.Format(DayLayout))
	if err != nil {
		return ImportantDate{}, fmt.Errorf("insert important date: %w", err)
	}
	return d, nil
}

// ImportantDates returns the user's own dates plus those shared with the couple.
func (s *Store) ImportantDates(ctx context.Context, userID, coupleID string) ([]ImportantDate, error) {
	query := `SELECT id, user_id, couple_id, title, kind, date FROM important_dates WHERE user_id = ?`
	args := []any{userID}
	if coupleID != "" {
		query += ` OR couple_id = ?`
		args = append(args, coupleID)
	}
	query += ` ORDER BY date ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list important dates: %w", err)
	}
	defer rows.Close()

	var out []ImportantDate
	for rows.Next() {
		var d ImportantDate
		var couple, kind sql.NullString
		var date string
		if err := rows.Scan(&d.ID, &d.UserID, &couple, &d.Title, &kind, &date); err != nil {
			return nil, fmt.Errorf("scan important date: %w", err)
		}
		d.CoupleID = couple.String
		d.Kind = kind.String
		d.Date, _ = time.Parse(DayLayout, date)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate important dates: %w", err)
	}
	return out, nil
}

func (s *Store) AddMemory(ctx context.Context, userID, content string) (Memory, error) {
	m := Memory{ID: idgen.New(), UserID: userID, Content: content, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx, `INSERT INTO memories (id, user_id, content, created_at) VALUES (?, ?, ?, ?)`,
		m.ID, m.UserID, m.Content, FormatTime(m.CreatedAt))
	if err != nil {
		return Memory{}, fmt.Errorf("insert memory: %w", err)
	}
	return m, nil
}

func (s *Store) Memories(ctx context.Context, userID string, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, content, created_at FROM memories WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		var m Memory
		var createdAtStr string
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		m.CreatedAt = ParseTime(createdAtStr)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	return out, nil
}
