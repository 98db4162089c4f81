package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when no document has the requested id.
var ErrNotFound = errors.New("document not found")

// Store provides access to the document collections backing the application.
// Each collection maps to one table; all documents of a collection share the
// collection name as partition key so property filters stay inside a single
// partition scan.
type Store struct {
	svc      *aztables.ServiceClient
	notifier *Notifier
}

// New creates a Store from the given connection string. The retry policy
// bounds every table round trip so a flaky backend cannot hang a caller
// indefinitely.
func New(connStr string, notifier *Notifier) (*Store, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Second * 30,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Store{svc: svc, notifier: notifier}, nil
}

// EnsureTables creates the backing tables when absent.
func (s *Store) EnsureTables(ctx context.Context, names ...string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		c := s.svc.NewClient(name)
		if _, err := c.CreateTable(ctx, nil); err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
				return err
			}
		}
	}
	return nil
}

// Collection returns a client for the named collection.
func (s *Store) Collection(name string) *Collection {
	return &Collection{
		name:     name,
		table:    s.svc.NewClient(name),
		notifier: s.notifier,
	}
}

// Collection exposes CRUD and live subscriptions over one document
// collection.
type Collection struct {
	name     string
	table    *aztables.Client
	notifier *Notifier
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Get retrieves a single document by id.
func (c *Collection) Get(ctx context.Context, id string) (Document, error) {
	ent, err := c.table.GetEntity(ctx, c.name, id, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return decodeEntity(ent.Value)
}

// Query returns all documents matching the filter, in store order. A nil
// filter returns the whole collection.
func (c *Collection) Query(ctx context.Context, filter *Filter) ([]Document, error) {
	odata := c.odataFilter(filter)
	pager := c.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &odata})
	docs := []Document{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			doc, err := decodeEntity(e)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// Add stores a new document and returns its store-assigned id.
func (c *Collection) Add(ctx context.Context, fields Fields) (string, error) {
	id := uuid.NewString()
	payload, err := encodeEntity(c.name, id, fields)
	if err != nil {
		return "", err
	}
	if _, err := c.table.AddEntity(ctx, payload, nil); err != nil {
		return "", err
	}
	c.notifyChanged(ctx)
	return id, nil
}

// Set stores a document under a caller-chosen id, replacing any previous
// version. Used for documents keyed by an externally issued identifier.
func (c *Collection) Set(ctx context.Context, id string, fields Fields) error {
	payload, err := encodeEntity(c.name, id, fields)
	if err != nil {
		return err
	}
	if _, err := c.table.UpsertEntity(ctx, payload, nil); err != nil {
		return err
	}
	c.notifyChanged(ctx)
	return nil
}

// Update merges the given fields into an existing document.
func (c *Collection) Update(ctx context.Context, id string, patch Fields) error {
	payload, err := encodeEntity(c.name, id, patch)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = c.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeMerge,
	})
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return ErrNotFound
		}
		return err
	}
	c.notifyChanged(ctx)
	return nil
}

// Delete removes a document. Deleting an absent document is not an error.
func (c *Collection) Delete(ctx context.Context, id string) error {
	if _, err := c.table.DeleteEntity(ctx, c.name, id, nil); err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.StatusCode == 404) {
			return err
		}
	}
	c.notifyChanged(ctx)
	return nil
}

// Subscribe opens a live view over the filtered collection. The subscription
// delivers an initial snapshot and then a fresh full snapshot after every
// change notification.
func (c *Collection) Subscribe(filter *Filter) *Subscription {
	fetch := func(ctx context.Context) ([]Document, error) {
		return c.Query(ctx, filter)
	}
	return newSubscription(c.notifier, c.name, fetch)
}

func (c *Collection) notifyChanged(ctx context.Context) {
	if c.notifier == nil {
		return
	}
	c.notifier.Publish(ctx, c.name)
}

func (c *Collection) odataFilter(f *Filter) string {
	odata := fmt.Sprintf("PartitionKey eq '%s'", c.name)
	if f != nil {
		odata += fmt.Sprintf(" and %s eq '%s'", f.Field, strings.ReplaceAll(f.Value, "'", "''"))
	}
	return odata
}
