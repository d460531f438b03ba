package store

import (
	"context"
	"fmt"
	"time"
)

const userColumns = `id, first_name, last_name, username, email, is_verified, bio,
	location_state, location_city, location_country, highlight, profile_picture, created_at`

func scanUser(r row) (*User, error) {
	var (
		u         User
		createdAt int64
	)
	err := r.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Username, &u.Email, &u.IsVerified, &u.Bio,
		&u.LocationState, &u.LocationCity, &u.LocationCountry, &u.Highlight, &u.ProfilePicture, &createdAt)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(s.db.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		return nil, fmt.Errorf("user by email: %w", err)
	}
	return u, nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*User, error) {
	u, err := scanUser(s.db.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if err != nil {
		return nil, fmt.Errorf("user by username: %w", err)
	}
	return u, nil
}

func (s *Store) UserByID(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(s.db.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", id, err)
	}
	return u, nil
}

// CreateUser inserts a user. A taken username or email yields ErrConflict.
func (s *Store) CreateUser(ctx context.Context, nu NewUser) (*User, error) {
	var taken int
	err := s.db.queryRow(ctx, `SELECT COUNT(*) FROM users WHERE username = ? OR email = ?`, nu.Username, nu.Email).Scan(&taken)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if taken > 0 {
		return nil, fmt.Errorf("create user %q: %w", nu.Username, ErrConflict)
	}

	var id int64
	err = s.db.queryRow(ctx, `
		INSERT INTO users (first_name, last_name, username, email, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		nu.FirstName, nu.LastName, nu.Username, nu.Email, time.Now().Unix(),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create user %q: %w", nu.Username, ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	u, err := scanUser(s.db.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("load created user: %w", err)
	}
	return u, nil
}

func (s *Store) UpdateUserProfile(ctx context.Context, username string, p ProfileUpdate) error {
	if _, err := s.UserByUsername(ctx, username); err != nil {
		return err
	}
	err := s.db.exec(ctx, `
		UPDATE users SET bio = ?, location_state = ?, location_city = ?
		WHERE username = ?`,
		p.Bio, p.LocationState, p.LocationCity, username,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

func (s *Store) CreateCommunity(ctx context.Context, nc NewCommunity) (*Community, error) {
	c := Community{Name: nc.Name, Description: nc.Description, Link: nc.Link}
	err := s.db.queryRow(ctx, `
		INSERT INTO communities (name, description, link, user_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		nc.Name, nc.Description, nc.Link, nc.UserID, time.Now().Unix(),
	).Scan(&c.ID)
	if err != nil {
		return nil, fmt.Errorf("insert community: %w", err)
	}
	return &c, nil
}

func (s *Store) CommunitiesForUser(ctx context.Context, userID int64) ([]Community, error) {
	return communitiesFor(ctx, s.db, userID)
}

func communitiesFor(ctx context.Context, q querier, userID int64) ([]Community, error) {
	rs, err := q.query(ctx, `
		SELECT id, name, description, link FROM communities
		WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	defer rs.Close()

	out := []Community{}
	for rs.Next() {
		var c Community
		if err := rs.Scan(&c.ID, &c.Name, &c.Description, &c.Link); err != nil {
			return nil, fmt.Errorf("scan community: %w", err)
		}
		out = append(out, c)
	}
	return out, rs.Err()
}
