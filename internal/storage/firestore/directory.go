// Package firestore implements the device directory on Google Cloud
// Firestore, for deployments that keep device registrations there instead
// of Postgres.
package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cleanslate-app/go-push-service/pkg/notify"
)

// Directory implements dispatch.Directory over Firestore.
// Layout: users/{userID}/devices/{tokenHash} and
// households/{householdID}/members/{userID}.
type Directory struct {
	client *firestore.Client
}

func NewDirectory(client *firestore.Client) *Directory {
	return &Directory{client: client}
}

// deviceRecord is the stored device registration.
type deviceRecord struct {
	Token string `firestore:"token"`
}

// memberRecord is the stored household membership.
type memberRecord struct {
	Active bool `firestore:"active"`
}

func (d *Directory) ListTokens(ctx context.Context, userID uuid.UUID) ([]string, error) {
	iter := d.devicesCollection(userID).Documents(ctx)
	defer iter.Stop()

	var tokens []string
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, &notify.DirectoryError{Op: "list tokens", Err: fmt.Errorf("firestore iteration failed: %w", err)}
		}

		var record deviceRecord
		if err := doc.DataTo(&record); err != nil {
			// Corrupt rows are skipped rather than failing the batch.
			continue
		}
		if record.Token != "" {
			tokens = append(tokens, record.Token)
		}
	}
	return tokens, nil
}

func (d *Directory) DeleteTokens(ctx context.Context, userID uuid.UUID, tokens []string) error {
	for _, token := range tokens {
		if _, err := d.devicesCollection(userID).Doc(hashToken(token)).Delete(ctx); err != nil {
			return &notify.DirectoryError{Op: "delete tokens", Err: err}
		}
	}
	return nil
}

func (d *Directory) Membership(ctx context.Context, householdID, userID uuid.UUID) (*notify.Membership, error) {
	doc, err := d.client.Collection("households").
		Doc(householdID.String()).
		Collection("members").
		Doc(userID.String()).
		Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, &notify.DirectoryError{Op: "membership lookup", Err: err}
	}

	var record memberRecord
	if err := doc.DataTo(&record); err != nil {
		return nil, &notify.DirectoryError{Op: "membership lookup", Err: err}
	}
	return &notify.Membership{
		HouseholdID: householdID,
		UserID:      userID,
		Active:      record.Active,
	}, nil
}

// devicesCollection: users/{userID}/devices
func (d *Directory) devicesCollection(userID uuid.UUID) *firestore.CollectionRef {
	return d.client.Collection("users").Doc(userID.String()).Collection("devices")
}

// hashToken keys device docs by token hash to avoid hot-spotting and
// duplicates.
func hashToken(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}
