package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allowork/allowork/services/marketplace-service/internal/model"
)

// SeedDemo loads the Libreville demo data. Every seeded user gets
// passwordHash. Records that already exist are left alone, so seeding an
// existing Postgres database is harmless.
func SeedDemo(ctx context.Context, s Store, passwordHash string, now time.Time) error {
	for _, u := range demoUsers(passwordHash, now) {
		if err := ignoreConflict(s.CreateUser(ctx, u)); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}
	for _, svc := range demoServices() {
		if err := ignoreConflict(s.CreateService(ctx, svc)); err != nil {
			return fmt.Errorf("seed service %s: %w", svc.ID, err)
		}
	}
	for _, b := range demoBookings(now) {
		if err := ignoreConflict(s.CreateBooking(ctx, b)); err != nil {
			return fmt.Errorf("seed booking %s: %w", b.ID, err)
		}
	}
	for _, r := range demoRequests() {
		if err := ignoreConflict(s.CreateRequest(ctx, r)); err != nil {
			return fmt.Errorf("seed request %s: %w", r.ID, err)
		}
	}
	return seedConversation(ctx, s, now)
}

func ignoreConflict(err error) error {
	if errors.Is(err, ErrConflict) {
		return nil
	}
	return err
}

func demoUsers(hash string, now time.Time) []model.User {
	users := []model.User{
		{ID: "u1", Name: "Admin Allowork", Email: "admin@allowork.ga", Role: model.RoleAdmin},
		{ID: "u2", Name: "Client Test", Email: "client@gmail.com", PhoneNumber: "074 00 11 22", Role: model.RoleClient, Location: "Batterie 4"},
		{ID: "u3", Name: "Marc O.", Email: "marc@gmail.com", Role: model.RoleClient, Location: "Centre Ville"},
		{ID: "p1", Name: "Jean Bricole", Email: "jean@bricole.ga", PhoneNumber: "066 99 88 77", Role: model.RoleProvider, Specialty: "Plomberie", Location: "Louis"},
		{ID: "p2", Name: "Marie Claire", Email: "marie@claire.ga", Role: model.RoleProvider, Specialty: "Ménage", Location: "Akanda"},
		{ID: "p3", Name: "ElecGabon Pro", Email: "contact@elecgabon.ga", Role: model.RoleProvider, Specialty: "Électricité", Location: "Nzeng-Ayong"},
		{ID: "p4", Name: "Coach Paul", Email: "paul@coach.ga", Role: model.RoleProvider, Specialty: "Cours Particuliers", Location: "Charbonnages"},
		{ID: "p5", Name: "Clim Express", Email: "contact@climexpress.ga", Role: model.RoleProvider, Specialty: "Climatisation", Location: "Centre Ville"},
	}
	for i := range users {
		users[i].PasswordHash = hash
		users[i].CreatedAt = now
	}
	return users
}

func demoServices() []model.Service {
	svc := func(id, providerID, providerName, title, desc, category string, price int64, location string, rating float64, img int) model.Service {
		return model.Service{
			ID:           id,
			ProviderID:   providerID,
			ProviderName: providerName,
			Title:        title,
			Description:  desc,
			Category:     category,
			Price:        price,
			Location:     location,
			Rating:       rating,
			Reviews:      []model.Review{},
			ImageURL:     fmt.Sprintf("https://picsum.photos/400/300?random=%d", img),
			Available:    true,
		}
	}
	return []model.Service{
		svc("s1", "p1", "Jean Bricole", "Plomberie d'urgence", "Réparation de fuites et débouchage rapide.", "Plomberie", 15000, "Louis", 4.8, 1),
		svc("s2", "p2", "Marie Claire", "Ménage complet", "Nettoyage de maison et bureaux, produits inclus.", "Ménage", 25000, "Akanda", 4.9, 2),
		svc("s3", "p3", "ElecGabon Pro", "Installation Électrique", "Mise aux normes et installation de compteurs.", "Électricité", 35000, "Nzeng-Ayong", 4.5, 3),
		svc("s4", "p4", "Coach Paul", "Cours de Mathématiques", "Soutien scolaire pour lycée et collège.", "Cours Particuliers", 10000, "Charbonnages", 5.0, 4),
		svc("s5", "p5", "Clim Express", "Entretien Climatiseur", "Nettoyage et recharge de gaz.", "Climatisation", 20000, "Centre Ville", 4.6, 5),
	}
}

func demoBookings(now time.Time) []model.Booking {
	return []model.Booking{
		{ID: "b1", ServiceID: "s1", ClientID: "u2", ProviderID: "p1", Date: "2023-10-25", Status: model.BookingCompleted, TotalPrice: 15000, CreatedAt: now},
		{ID: "b2", ServiceID: "s3", ClientID: "u2", ProviderID: "p3", Date: "2023-11-02", Status: model.BookingPending, TotalPrice: 35000, CreatedAt: now},
	}
}

func demoRequests() []model.ServiceRequest {
	return []model.ServiceRequest{
		{
			ID:          "r1",
			UserID:      "u2",
			UserName:    "Sophie K.",
			Title:       "Recherche Plombier pour fuite",
			Description: "Bonjour, j'ai une fuite importante sous mon évier à Akanda. Urgent merci.",
			Category:    "Plomberie",
			Location:    "Akanda",
			Budget:      10000,
			Date:        "2023-11-10",
			Status:      model.RequestOpen,
			CreatedAt:   time.Date(2023, 11, 10, 9, 0, 0, 0, time.UTC),
		},
		{
			ID:          "r2",
			UserID:      "u3",
			UserName:    "Marc O.",
			Title:       "Besoin d'aide déménagement",
			Description: "Cherche 2 bras pour monter un canapé au 3ème étage.",
			Category:    "Déménagement",
			Location:    "Centre Ville",
			Budget:      15000,
			Date:        "2023-11-11",
			Status:      model.RequestOpen,
			CreatedAt:   time.Date(2023, 11, 11, 9, 0, 0, 0, time.UTC),
		},
	}
}

func seedConversation(ctx context.Context, s Store, now time.Time) error {
	if _, err := s.GetConversation(ctx, "c1"); err == nil {
		return nil
	}
	first := model.Message{
		ID:             "m0",
		ConversationID: "c1",
		SenderID:       "u2",
		ReceiverID:     "p1",
		Content:        "Bonjour Jean, faites-vous les interventions le weekend ?",
		Timestamp:      now.Add(-2 * time.Hour),
		Read:           true,
	}
	second := model.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "p1",
		ReceiverID:     "u2",
		Content:        "Bonjour, je suis disponible demain pour la plomberie.",
		Timestamp:      now.Add(-time.Hour),
	}
	conv := model.Conversation{ID: "c1", Participants: [2]string{"u2", "p1"}, LastMessage: first}
	if err := ignoreConflict(s.CreateConversation(ctx, conv)); err != nil {
		return fmt.Errorf("seed conversation c1: %w", err)
	}
	for _, msg := range []model.Message{first, second} {
		last := msg
		if _, err := s.AppendMessage(ctx, msg, func(c *model.Conversation) error {
			c.LastMessage = last
			c.UnreadCount = 1
			return nil
		}); err != nil {
			return fmt.Errorf("seed message %s: %w", msg.ID, err)
		}
	}
	return nil
}
