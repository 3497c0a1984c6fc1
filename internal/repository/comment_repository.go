package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/donation-market/internal/model"
)

// CommentRepo stores comments left on posts.
type CommentRepo struct {
	db *sql.DB
}

func NewCommentRepo(db *sql.DB) *CommentRepo { return &CommentRepo{db: db} }

const commentSelect = `SELECT m.id, m.content, m.comment_date, m.post_id, m.client_id, c.username
	FROM comment m JOIN client c ON c.id = m.client_id`

func scanComment(s scanner) (*model.Comment, error) {
	var m model.Comment
	if err := s.Scan(&m.ID, &m.Content, &m.Date, &m.PostID, &m.ClientID, &m.Username); err != nil {
		return nil, err
	}
	return &m, nil
}

// Create inserts m.  The post must exist.
func (r *CommentRepo) Create(ctx context.Context, m *model.Comment) error {
	var one int
	if err := r.db.QueryRowContext(ctx, `SELECT 1 FROM post WHERE id = ?`, m.PostID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPostNotFound
		}
		return err
	}
	if m.Date.IsZero() {
		m.Date = now()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO comment (content, comment_date, post_id, client_id) VALUES (?, ?, ?, ?)`,
		m.Content, m.Date, m.PostID, m.ClientID)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)
	return nil
}

func (r *CommentRepo) GetByID(ctx context.Context, id uint64) (*model.Comment, error) {
	m, err := scanComment(r.db.QueryRowContext(ctx, commentSelect+` WHERE m.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCommentNotFound
	}
	return m, err
}

// ListByPost returns one page of a post's comments, oldest first.
func (r *CommentRepo) ListByPost(ctx context.Context, postID uint64, pg Page) (Result[model.Comment], error) {
	pg = pg.Normalize()
	out := Result[model.Comment]{Rows: make([]model.Comment, 0)}
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM comment WHERE post_id = ?`, postID).Scan(&out.Total); err != nil {
		return out, err
	}
	rows, err := r.db.QueryContext(ctx,
		commentSelect+` WHERE m.post_id = ? ORDER BY m.comment_date, m.id LIMIT ? OFFSET ?`,
		postID, pg.Limit, pg.Offset())
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanComment(rows)
		if err != nil {
			return out, err
		}
		out.Rows = append(out.Rows, *m)
	}
	return out, rows.Err()
}

// Update replaces the content of a comment.
func (r *CommentRepo) Update(ctx context.Context, id uint64, content string) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `UPDATE comment SET content = ? WHERE id = ?`, content, id)
	return err
}

func (r *CommentRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM comment WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCommentNotFound
	}
	return nil
}
