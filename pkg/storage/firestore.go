package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pungrid/pungrid/pkg/log"
	"github.com/pungrid/pungrid/pkg/types"
)

// FirestoreProvider implements Database using Google Cloud Firestore. Every
// document lives under installations/{installationID}.
type FirestoreProvider struct {
	client         *firestore.Client
	projectID      string
	database       string
	installationID string
}

var _ Database = (*FirestoreProvider)(nil)

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")
	installationID := lflag.String("installation-id", "default", "Namespace of this installation's documents")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database
		f.installationID = *installationID

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	if f.installationID == "" {
		return fmt.Errorf("installation-id cannot be empty")
	}
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) collection(name string) *firestore.CollectionRef {
	return f.client.Collection("installations").Doc(f.installationID).Collection(name)
}

// getJSON loads the "json" field of ref into v. It returns ErrNotFound when
// the document does not exist, along with the stored version.
func getJSON(ctx context.Context, ref *firestore.DocumentRef, v any) (int, error) {
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to fetch %s: %w", ref.Path, err)
	}
	return decodeJSON(ctx, doc, v)
}

func decodeJSON(ctx context.Context, doc *firestore.DocumentSnapshot, v any) (int, error) {
	// Read version if available (default 0)
	var version int
	if raw, err := doc.DataAt("version"); err == nil {
		if vInt, ok := raw.(int64); ok {
			version = int(vInt)
		}
	}

	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "doc missing json", slog.String("docID", doc.Ref.ID), slog.Any("err", err))
		return 0, fmt.Errorf("document %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "doc json not string", slog.String("docID", doc.Ref.ID))
		return 0, fmt.Errorf("document %s 'json' field is not a string", doc.Ref.ID)
	}
	if err := json.Unmarshal([]byte(jsonStr), v); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal doc json", slog.String("docID", doc.Ref.ID), slog.Any("err", err))
		return 0, fmt.Errorf("failed to unmarshal %s: %w", doc.Ref.ID, err)
	}
	return version, nil
}

// GetSettings retrieves the runtime configuration from the "config/settings"
// document. Missing settings return version 0 so they get migrated.
func (f *FirestoreProvider) GetSettings(ctx context.Context) (types.Settings, int, error) {
	var s types.Settings
	version, err := getJSON(ctx, f.collection("config").Doc("settings"), &s)
	if err == ErrNotFound {
		return types.Settings{}, 0, nil
	}
	if err != nil {
		return types.Settings{}, 0, err
	}
	return s, version, nil
}

// SetSettings saves the runtime configuration to the "config/settings"
// document. It stores the settings as a JSON string for portability.
func (f *FirestoreProvider) SetSettings(ctx context.Context, settings types.Settings, version int) error {
	jsonBytes, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	_, err = f.collection("config").Doc("settings").Set(ctx, map[string]interface{}{
		"json":    string(jsonBytes),
		"version": version,
	})
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// GetInstallation retrieves the "config/installation" document.
func (f *FirestoreProvider) GetInstallation(ctx context.Context) (types.Installation, error) {
	var inst types.Installation
	if _, err := getJSON(ctx, f.collection("config").Doc("installation"), &inst); err != nil {
		return types.Installation{}, err
	}
	return inst, nil
}

// SetInstallation saves the "config/installation" document.
func (f *FirestoreProvider) SetInstallation(ctx context.Context, inst types.Installation) error {
	jsonBytes, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("failed to marshal installation: %w", err)
	}
	_, err = f.collection("config").Doc("installation").Set(ctx, map[string]interface{}{
		"json": string(jsonBytes),
	})
	if err != nil {
		return fmt.Errorf("failed to save installation: %w", err)
	}
	return nil
}

// UpsertPrices adds or updates price records in the "price_history"
// collection. The document ID starts with the RFC3339 timestamp of TSStart
// for efficient range queries.
func (f *FirestoreProvider) UpsertPrices(ctx context.Context, prices []types.Price, version int) error {
	if len(prices) == 0 {
		return nil
	}
	coll := f.collection("price_history")
	bw := f.client.BulkWriter(ctx)

	jobs := make([]*firestore.BulkWriterJob, 0, len(prices))
	for _, price := range prices {
		jsonBytes, err := json.Marshal(price)
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to marshal price: %w", err)
		}
		job, err := bw.Set(coll.Doc(price.ID()), map[string]interface{}{
			"json":      string(jsonBytes),
			"timestamp": price.TSStart,
			"zone":      string(price.Zone),
			"version":   version,
		})
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to queue price %s: %w", price.ID(), err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("failed to upsert price: %w", err)
		}
	}
	log.Ctx(ctx).DebugContext(ctx, "upserted prices", slog.Int("count", len(prices)))
	return nil
}

// GetPriceHistory retrieves price records of zone within the specified time
// range. Uses document ID range queries for efficient filtering.
func (f *FirestoreProvider) GetPriceHistory(ctx context.Context, zone types.Zone, start, end time.Time) ([]types.Price, error) {
	startDocID := start.UTC().Format(time.RFC3339)
	endDocID := end.UTC().Format(time.RFC3339)

	coll := f.collection("price_history")
	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(startDocID)).
		Where(firestore.DocumentID, "<", coll.Doc(endDocID)).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var prices []types.Price
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating prices: %w", err)
		}

		var p types.Price
		if _, err := decodeJSON(ctx, doc, &p); err != nil {
			return nil, err
		}
		if p.Zone != zone {
			continue
		}
		prices = append(prices, p)
	}
	return prices, nil
}
