package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/allowork/allowork/libs/db"
	"github.com/allowork/allowork/services/marketplace-service/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed schema.sql
var schemaSQL string

// Postgres keeps marketplace state in Postgres. Read-modify-write methods
// lock the row with SELECT ... FOR UPDATE.
type Postgres struct {
	pool *db.Pool
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var _ Store = (*Postgres)(nil)

// EnsureSchema creates the marketplace tables when they are missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%s: %w", what, ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}

const userColumns = `id, name, email, phone_number, role, specialty, location, password_hash, created_at`

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PhoneNumber, &u.Role, &u.Specialty, &u.Location, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

func (p *Postgres) CreateUser(ctx context.Context, u model.User) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, u.ID, u.Name, u.Email, u.PhoneNumber, u.Role, u.Specialty, u.Location, u.PasswordHash, u.CreatedAt)
	return mapErr(err, "create user "+u.Email)
}

func (p *Postgres) GetUser(ctx context.Context, id string) (model.User, error) {
	u, err := scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	return u, mapErr(err, "user "+id)
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	return u, mapErr(err, "user "+email)
}

func (p *Postgres) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, mapErr(err, "list users")
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

const serviceColumns = `id, provider_id, provider_name, title, description, category, price, location, rating, reviews, image_url, available`

func scanService(row pgx.Row) (model.Service, error) {
	var s model.Service
	var reviews []byte
	if err := row.Scan(&s.ID, &s.ProviderID, &s.ProviderName, &s.Title, &s.Description, &s.Category, &s.Price, &s.Location, &s.Rating, &reviews, &s.ImageURL, &s.Available); err != nil {
		return model.Service{}, err
	}
	s.Reviews = []model.Review{}
	if len(reviews) > 0 {
		if err := json.Unmarshal(reviews, &s.Reviews); err != nil {
			return model.Service{}, fmt.Errorf("decode reviews: %w", err)
		}
	}
	return s, nil
}

func (p *Postgres) CreateService(ctx context.Context, s model.Service) error {
	if s.Reviews == nil {
		s.Reviews = []model.Review{}
	}
	reviews, err := json.Marshal(s.Reviews)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO services (`+serviceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, s.ID, s.ProviderID, s.ProviderName, s.Title, s.Description, s.Category, s.Price, s.Location, s.Rating, reviews, s.ImageURL, s.Available)
	return mapErr(err, "create service "+s.ID)
}

func (p *Postgres) GetService(ctx context.Context, id string) (model.Service, error) {
	s, err := scanService(p.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	return s, mapErr(err, "service "+id)
}

func (p *Postgres) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+serviceColumns+` FROM services ORDER BY created_at, id`)
	if err != nil {
		return nil, mapErr(err, "list services")
	}
	defer rows.Close()
	var out []model.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const requestColumns = `id, user_id, user_name, title, description, category, location, budget, date, status, created_at`

func scanRequest(row pgx.Row) (model.ServiceRequest, error) {
	var r model.ServiceRequest
	err := row.Scan(&r.ID, &r.UserID, &r.UserName, &r.Title, &r.Description, &r.Category, &r.Location, &r.Budget, &r.Date, &r.Status, &r.CreatedAt)
	return r, err
}

func (p *Postgres) CreateRequest(ctx context.Context, r model.ServiceRequest) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO service_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, r.ID, r.UserID, r.UserName, r.Title, r.Description, r.Category, r.Location, r.Budget, r.Date, r.Status, r.CreatedAt)
	return mapErr(err, "create request "+r.ID)
}

func (p *Postgres) GetRequest(ctx context.Context, id string) (model.ServiceRequest, error) {
	r, err := scanRequest(p.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM service_requests WHERE id = $1`, id))
	return r, mapErr(err, "request "+id)
}

func (p *Postgres) ListRequests(ctx context.Context) ([]model.ServiceRequest, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+requestColumns+` FROM service_requests ORDER BY created_at, id`)
	if err != nil {
		return nil, mapErr(err, "list requests")
	}
	defer rows.Close()
	var out []model.ServiceRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateRequest(ctx context.Context, id string, fn func(*model.ServiceRequest) error) (model.ServiceRequest, error) {
	var out model.ServiceRequest
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		r, err := scanRequest(tx.QueryRow(ctx, `SELECT `+requestColumns+` FROM service_requests WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return mapErr(err, "request "+id)
		}
		if err := fn(&r); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE service_requests
			SET title = $2, description = $3, budget = $4, status = $5
			WHERE id = $1
		`, r.ID, r.Title, r.Description, r.Budget, r.Status); err != nil {
			return mapErr(err, "update request "+id)
		}
		out = r
		return nil
	})
	return out, err
}

const bookingColumns = `id, service_id, client_id, provider_id, date, status, total_price, created_at`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(&b.ID, &b.ServiceID, &b.ClientID, &b.ProviderID, &b.Date, &b.Status, &b.TotalPrice, &b.CreatedAt)
	return b, err
}

func (p *Postgres) CreateBooking(ctx context.Context, b model.Booking) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, b.ID, b.ServiceID, b.ClientID, b.ProviderID, b.Date, b.Status, b.TotalPrice, b.CreatedAt)
	return mapErr(err, "create booking "+b.ID)
}

func (p *Postgres) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(p.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	return b, mapErr(err, "booking "+id)
}

func (p *Postgres) ListBookings(ctx context.Context) ([]model.Booking, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY created_at, id`)
	if err != nil {
		return nil, mapErr(err, "list bookings")
	}
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateBooking(ctx context.Context, id string, fn func(*model.Booking) error) (model.Booking, error) {
	var out model.Booking
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		b, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return mapErr(err, "booking "+id)
		}
		if err := fn(&b); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE bookings SET status = $2 WHERE id = $1`, b.ID, b.Status); err != nil {
			return mapErr(err, "update booking "+id)
		}
		out = b
		return nil
	})
	return out, err
}

const conversationColumns = `id, participant_a, participant_b, last_message, unread_count`

func scanConversation(row pgx.Row) (model.Conversation, error) {
	var c model.Conversation
	var last []byte
	if err := row.Scan(&c.ID, &c.Participants[0], &c.Participants[1], &last, &c.UnreadCount); err != nil {
		return model.Conversation{}, err
	}
	if err := json.Unmarshal(last, &c.LastMessage); err != nil {
		return model.Conversation{}, fmt.Errorf("decode last message: %w", err)
	}
	return c, nil
}

func (p *Postgres) CreateConversation(ctx context.Context, c model.Conversation) error {
	last, err := json.Marshal(c.LastMessage)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO conversations (id, participant_a, participant_b, last_message, last_at, unread_count)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.Participants[0], c.Participants[1], last, c.LastMessage.Timestamp, c.UnreadCount)
	return mapErr(err, "create conversation "+c.ID)
}

func (p *Postgres) GetConversation(ctx context.Context, id string) (model.Conversation, error) {
	c, err := scanConversation(p.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	return c, mapErr(err, "conversation "+id)
}

func (p *Postgres) FindConversation(ctx context.Context, a, b string) (model.Conversation, error) {
	c, err := scanConversation(p.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE (participant_a = $1 AND participant_b = $2) OR (participant_a = $2 AND participant_b = $1)
	`, a, b))
	return c, mapErr(err, "conversation "+a+"/"+b)
}

func (p *Postgres) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE participant_a = $1 OR participant_b = $1
		ORDER BY last_at DESC
	`, userID)
	if err != nil {
		return nil, mapErr(err, "list conversations")
	}
	defer rows.Close()
	var out []model.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) AppendMessage(ctx context.Context, m model.Message, fn func(*model.Conversation) error) (model.Conversation, error) {
	var out model.Conversation
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		c, err := scanConversation(tx.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1 FOR UPDATE`, m.ConversationID))
		if err != nil {
			return mapErr(err, "conversation "+m.ConversationID)
		}
		if err := fn(&c); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO messages (id, conversation_id, sender_id, receiver_id, content, sent_at, read)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, m.ID, m.ConversationID, m.SenderID, m.ReceiverID, m.Content, m.Timestamp, m.Read); err != nil {
			return mapErr(err, "insert message "+m.ID)
		}
		if err := updateConversation(ctx, tx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

func updateConversation(ctx context.Context, tx pgx.Tx, c model.Conversation) error {
	last, err := json.Marshal(c.LastMessage)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE conversations SET last_message = $2, last_at = $3, unread_count = $4 WHERE id = $1
	`, c.ID, last, c.LastMessage.Timestamp, c.UnreadCount)
	return mapErr(err, "update conversation "+c.ID)
}

func (p *Postgres) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, receiver_id, content, sent_at, read
		FROM messages WHERE conversation_id = $1
		ORDER BY sent_at, id
	`, conversationID)
	if err != nil {
		return nil, mapErr(err, "list messages")
	}
	defer rows.Close()
	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Timestamp, &m.Read); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkMessageRead(ctx context.Context, conversationID, messageID string) (bool, error) {
	var changed bool
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		c, err := scanConversation(tx.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1 FOR UPDATE`, conversationID))
		if err != nil {
			return mapErr(err, "conversation "+conversationID)
		}
		var wasRead bool
		err = tx.QueryRow(ctx, `
			SELECT read FROM messages WHERE id = $1 AND conversation_id = $2
		`, messageID, conversationID).Scan(&wasRead)
		if err != nil {
			return mapErr(err, "message "+messageID)
		}
		if _, err := tx.Exec(ctx, `UPDATE messages SET read = TRUE WHERE id = $1`, messageID); err != nil {
			return mapErr(err, "mark message "+messageID)
		}
		changed = !wasRead
		if c.LastMessage.ID == messageID && !c.LastMessage.Read {
			c.LastMessage.Read = true
			return updateConversation(ctx, tx, c)
		}
		return nil
	})
	return changed, err
}

func (p *Postgres) MarkConversationRead(ctx context.Context, conversationID, readerID string) (int, error) {
	var n int
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		c, err := scanConversation(tx.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1 FOR UPDATE`, conversationID))
		if err != nil {
			return mapErr(err, "conversation "+conversationID)
		}
		tag, err := tx.Exec(ctx, `
			UPDATE messages SET read = TRUE
			WHERE conversation_id = $1 AND receiver_id = $2 AND NOT read
		`, conversationID, readerID)
		if err != nil {
			return mapErr(err, "mark conversation "+conversationID)
		}
		n = int(tag.RowsAffected())
		if c.LastMessage.ReceiverID == readerID {
			c.LastMessage.Read = true
			c.UnreadCount = 0
			return updateConversation(ctx, tx, c)
		}
		return nil
	})
	return n, err
}

func (p *Postgres) CreateNotification(ctx context.Context, n model.Notification) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, message, created_at, read, type, link_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, n.UserID, n.Message, n.Date, n.Read, n.Type, n.LinkTo)
	return mapErr(err, "create notification "+n.ID)
}

func (p *Postgres) ListNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, user_id, message, created_at, read, type, link_to
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC, id
	`, userID)
	if err != nil {
		return nil, mapErr(err, "list notifications")
	}
	defer rows.Close()
	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.Date, &n.Read, &n.Type, &n.LinkTo); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkNotificationsRead(ctx context.Context, userID string) (int, error) {
	tag, err := p.pool.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE user_id = $1 AND NOT read`, userID)
	if err != nil {
		return 0, mapErr(err, "mark notifications")
	}
	return int(tag.RowsAffected()), nil
}
