package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-fees-api/internal/models"
)

// StudentRepository manages persistence for the student directory.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students s"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.Grade != "" {
		conditions = append(conditions, fmt.Sprintf("s.grade = $%d", len(args)+1))
		args = append(args, filter.Grade)
	}
	if filter.Section != "" {
		conditions = append(conditions, fmt.Sprintf("s.section = $%d", len(args)+1))
		args = append(args, filter.Section)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.full_name) LIKE $%d OR LOWER(s.email) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"full_name":  "s.full_name",
		"email":      "s.email",
		"created_at": "s.created_at",
	}
	if sortBy == "" {
		sortBy = "created_at"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "s.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.email, s.full_name, s.grade, s.strand, s.section, s.status, s.created_at, s.updated_at
        %s ORDER BY %s %s NULLS LAST LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a single student record.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, email, full_name, grade, strand, section, status, created_at, updated_at
        FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByIDs resolves a roster of ids in one batch. Missing ids are simply
// absent from the result; the caller decides whether that is an error.
func (r *StudentRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Student, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT id, email, full_name, grade, strand, section, status, created_at, updated_at
        FROM students WHERE id = ANY($1)`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find students by ids: %w", err)
	}
	return students, nil
}

// ExistsByEmail checks if a student with the given email exists.
func (r *StudentRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, "SELECT 1 FROM students WHERE email = $1 LIMIT 1", email)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check email: %w", err)
	}
	return true, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt == nil {
		student.CreatedAt = &now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, email, full_name, grade, strand, section, status, created_at, updated_at)
        VALUES (:id, :email, :full_name, :grade, :strand, :section, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// DuplicateGroups returns every set of student records sharing one email,
// newest record first within each group. NULL created_at sorts last so the
// head of each group is always the canonical candidate.
func (r *StudentRepository) DuplicateGroups(ctx context.Context) ([]models.DuplicateGroup, error) {
	const query = `SELECT id, email, full_name, grade, strand, section, status, created_at, updated_at
        FROM students
        WHERE email IN (SELECT email FROM students GROUP BY email HAVING COUNT(*) > 1)
        ORDER BY email ASC, created_at DESC NULLS LAST`
	var rows []models.Student
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list duplicate students: %w", err)
	}

	var groups []models.DuplicateGroup
	for _, row := range rows {
		if len(groups) == 0 || groups[len(groups)-1].Email != row.Email {
			groups = append(groups, models.DuplicateGroup{Email: row.Email})
		}
		last := &groups[len(groups)-1]
		last.Records = append(last.Records, row)
	}
	return groups, nil
}

// MergeDuplicate repoints every row referencing the duplicate student to the
// canonical record and then deletes the duplicate, all in one transaction.
// Re-running after a partial failure is safe: the repoint updates match zero
// rows and the delete matches zero rows.
func (r *StudentRepository) MergeDuplicate(ctx context.Context, canonicalID, duplicateID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge students: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	repoints := []string{
		"UPDATE balances SET student_id = $1 WHERE student_id = $2",
		"UPDATE payments SET student_id = $1 WHERE student_id = $2",
		"UPDATE notifications SET student_id = $1 WHERE student_id = $2",
	}
	for _, stmt := range repoints {
		if _, err := tx.ExecContext(ctx, stmt, canonicalID, duplicateID); err != nil {
			return fmt.Errorf("repoint duplicate student %s: %w", duplicateID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM students WHERE id = $1", duplicateID); err != nil {
		return fmt.Errorf("delete duplicate student %s: %w", duplicateID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge students: %w", err)
	}
	commit = true
	return nil
}
