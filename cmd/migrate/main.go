package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/dvloznov/ynab-kubera-sync/internal/audit"
	"github.com/dvloznov/ynab-kubera-sync/internal/config"
	"github.com/dvloznov/ynab-kubera-sync/internal/logger"
)

var (
	projectID = flag.String("project", os.Getenv("AUDIT_PROJECT_ID"), "GCP project ID (or set AUDIT_PROJECT_ID)")
	datasetID = flag.String("dataset", envOr("AUDIT_DATASET", config.DefaultAuditDataset), "BigQuery dataset ID")
	location  = flag.String("location", "US", "Location used when the dataset has to be created")
	appliedBy = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
)

func main() {
	flag.Parse()

	ctx := logger.WithContext(context.Background(), logger.New())

	// Validate required flags
	if *projectID == "" {
		log.Fatal("Error: -project flag is required. Please specify your GCP project ID.")
	}

	client, err := bigquery.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatalf("Failed to create BigQuery client: %v", err)
	}
	defer client.Close()

	log.Printf("Connected to BigQuery project: %s, dataset: %s", *projectID, *datasetID)

	if err := ensureDataset(ctx, client.Dataset(*datasetID)); err != nil {
		log.Fatalf("Failed to ensure dataset: %v", err)
	}

	applied, err := audit.EnsureSchema(ctx, client, *projectID, *datasetID, *appliedBy)
	if err != nil {
		log.Fatalf("Migration failed after %d applied: %v", applied, err)
	}

	if applied == 0 {
		log.Println("No new migrations to apply. Database is up to date.")
	} else {
		log.Printf("Successfully applied %d migration(s)", applied)
	}
}

// ensureDataset creates the dataset when it does not exist yet.
func ensureDataset(ctx context.Context, ds *bigquery.Dataset) error {
	_, err := ds.Metadata(ctx)
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return err
	}

	log.Printf("Creating dataset %s in %s", ds.DatasetID, *location)
	return ds.Create(ctx, &bigquery.DatasetMetadata{Location: *location})
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
